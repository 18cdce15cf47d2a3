package s3

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/Mesteery/tantivy-1/directory"
)

// currentFileName is the manifest pointer handled by the commit layer.
const currentFileName = "CURRENT"

// ErrConcurrentModification is returned when another writer committed
// between reading the latest version and writing the next one.
var ErrConcurrentModification = errors.New("concurrent modification detected")

// DDBClient is the subset of the DynamoDB API the commit layer uses.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// CommitDirectory is an S3 directory whose CURRENT pointer lives in
// DynamoDB instead of S3. S3 offers no compare-and-swap, so concurrent
// committers could silently overwrite each other's manifests; a DynamoDB
// conditional put on a monotonically increasing version number turns the
// pointer flip into an atomic commit.
//
// Table schema:
//   - Partition key: base_uri (string), the s3://bucket/prefix of the index
//   - Sort key: version (number), monotonically increasing
type CommitDirectory struct {
	inner     *Directory
	ddbClient DDBClient
	tableName string
	baseURI   string
}

// NewCommitDirectory wraps inner with DynamoDB-coordinated commits.
// baseURI should be the "s3://bucket/prefix" of the index; it is the
// partition key, so distinct indexes sharing a table stay isolated.
func NewCommitDirectory(inner *Directory, ddbClient DDBClient, tableName, baseURI string) *CommitDirectory {
	return &CommitDirectory{
		inner:     inner,
		ddbClient: ddbClient,
		tableName: tableName,
		baseURI:   baseURI,
	}
}

// Open opens a file for reading. CURRENT resolves through DynamoDB.
func (d *CommitDirectory) Open(ctx context.Context, name string) (directory.Blob, error) {
	if name == currentFileName {
		version, manifestPath, err := d.latestVersion(ctx)
		if err != nil {
			return nil, err
		}
		if version == 0 {
			return nil, directory.ErrNotFound
		}
		return &virtualCurrentBlob{content: []byte(manifestPath)}, nil
	}
	return d.inner.Open(ctx, name)
}

// Put writes a file. For CURRENT, it performs a conditional DynamoDB
// write and returns ErrConcurrentModification if another writer won.
func (d *CommitDirectory) Put(ctx context.Context, name string, data []byte) error {
	if name == currentFileName {
		return d.commitVersion(ctx, string(data))
	}
	return d.inner.Put(ctx, name, data)
}

// Create starts a streaming upload on the underlying S3 directory.
func (d *CommitDirectory) Create(ctx context.Context, name string) (directory.WritableBlob, error) {
	return d.inner.Create(ctx, name)
}

// Delete removes a file from the underlying S3 directory.
func (d *CommitDirectory) Delete(ctx context.Context, name string) error {
	return d.inner.Delete(ctx, name)
}

// List lists files in the underlying S3 directory.
func (d *CommitDirectory) List(ctx context.Context, prefix string) ([]string, error) {
	return d.inner.List(ctx, prefix)
}

func (d *CommitDirectory) latestVersion(ctx context.Context) (uint64, string, error) {
	resp, err := d.ddbClient.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(d.tableName),
		KeyConditionExpression: aws.String("base_uri = :uri"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uri": &types.AttributeValueMemberS{Value: d.baseURI},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return 0, "", fmt.Errorf("failed to query commit table: %w", err)
	}
	if len(resp.Items) == 0 {
		return 0, "", nil
	}

	item := resp.Items[0]
	versionAttr, ok := item["version"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, "", errors.New("invalid version attribute in commit table")
	}
	pathAttr, ok := item["manifest_path"].(*types.AttributeValueMemberS)
	if !ok {
		return 0, "", errors.New("invalid manifest_path attribute in commit table")
	}

	var version uint64
	if _, err := fmt.Sscanf(versionAttr.Value, "%d", &version); err != nil {
		return 0, "", fmt.Errorf("failed to parse commit version: %w", err)
	}
	return version, pathAttr.Value, nil
}

func (d *CommitDirectory) commitVersion(ctx context.Context, manifestPath string) error {
	currentVersion, _, err := d.latestVersion(ctx)
	if err != nil {
		return err
	}
	newVersion := currentVersion + 1

	_, err = d.ddbClient.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item: map[string]types.AttributeValue{
			"base_uri":      &types.AttributeValueMemberS{Value: d.baseURI},
			"version":       &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", newVersion)},
			"manifest_path": &types.AttributeValueMemberS{Value: manifestPath},
		},
		ConditionExpression: aws.String("attribute_not_exists(version)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return ErrConcurrentModification
		}
		return fmt.Errorf("failed to commit version: %w", err)
	}
	return nil
}

// virtualCurrentBlob serves the CURRENT content resolved from DynamoDB.
type virtualCurrentBlob struct {
	content []byte
}

func (b *virtualCurrentBlob) Close() error {
	return nil
}

func (b *virtualCurrentBlob) Size() int64 {
	return int64(len(b.content))
}

func (b *virtualCurrentBlob) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(b.content)) {
		return 0, io.EOF
	}
	n := copy(p, b.content[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
