package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"
)

// DynamoDB key constants for the single-table design.
const (
	pkPrefix  = "PROJECT#"
	skMeta    = "META"
	skImage   = "IMAGE#"
	skVersion = "VERSION#"
	skExport  = "EXPORT#"

	// maxBatchWrite is the DynamoDB BatchWriteItem limit per call.
	maxBatchWrite = 25
)

// ExportTTL bounds how long export records live. Matches the lifecycle rule
// on the exports/ prefix of the media bucket.
const ExportTTL = 7 * 24 * time.Hour

// DynamoAPI is the subset of the DynamoDB client used by DynamoStore.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// DynamoStore implements Store using AWS DynamoDB.
type DynamoStore struct {
	client    DynamoAPI
	tableName string
}

// Compile-time interface check.
var _ Store = (*DynamoStore)(nil)

// NewDynamoStore creates a DynamoStore for the given table.
// The client should be initialized from the shared AWS config.
func NewDynamoStore(client DynamoAPI, tableName string) *DynamoStore {
	return &DynamoStore{
		client:    client,
		tableName: tableName,
	}
}

// --- Internal helpers ---

func projectPK(projectID string) string {
	return pkPrefix + projectID
}

func versionSK(imageID, versionID string) string {
	return skVersion + imageID + "#" + versionID
}

// putItem marshals a domain object and writes it with PK, SK and an
// optional TTL (zero means no expiry).
func (s *DynamoStore) putItem(ctx context.Context, pk, sk string, data interface{}, ttl time.Duration) error {
	item, err := attributevalue.MarshalMap(data)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	item["PK"] = &types.AttributeValueMemberS{Value: pk}
	item["SK"] = &types.AttributeValueMemberS{Value: sk}
	if ttl > 0 {
		item["expiresAt"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(time.Now().Add(ttl).Unix(), 10)}
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("PutItem PK=%s SK=%s: %w", pk, sk, err)
	}
	return nil
}

// getItem reads a single item and unmarshals it into out.
// Returns false if the item does not exist (out is not modified).
func (s *DynamoStore) getItem(ctx context.Context, pk, sk string, out interface{}) (bool, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.tableName,
		Key:       itemKey(pk, sk),
	})
	if err != nil {
		return false, fmt.Errorf("GetItem PK=%s SK=%s: %w", pk, sk, err)
	}
	if result.Item == nil {
		return false, nil
	}
	if err := attributevalue.UnmarshalMap(result.Item, out); err != nil {
		return false, fmt.Errorf("unmarshal PK=%s SK=%s: %w", pk, sk, err)
	}
	return true, nil
}

func itemKey(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

// queryBySKPrefix returns every item of a project whose SK begins with prefix.
func (s *DynamoStore) queryBySKPrefix(ctx context.Context, projectID, skPrefix string) ([]map[string]types.AttributeValue, error) {
	pk := projectPK(projectID)

	input := &dynamodb.QueryInput{
		TableName:              &s.tableName,
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :skPrefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":       &types.AttributeValueMemberS{Value: pk},
			":skPrefix": &types.AttributeValueMemberS{Value: skPrefix},
		},
	}

	var allItems []map[string]types.AttributeValue

	// DynamoDB returns up to 1MB per Query call.
	for {
		result, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("Query PK=%s SK prefix=%s: %w", pk, skPrefix, err)
		}
		allItems = append(allItems, result.Items...)

		if result.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}

	return allItems, nil
}

// batchDeleteKeys deletes items in chunks of maxBatchWrite and retries
// unprocessed keys once.
func (s *DynamoStore) batchDeleteKeys(ctx context.Context, keys []map[string]types.AttributeValue) error {
	for i := 0; i < len(keys); i += maxBatchWrite {
		end := i + maxBatchWrite
		if end > len(keys) {
			end = len(keys)
		}

		var requests []types.WriteRequest
		for _, key := range keys[i:end] {
			requests = append(requests, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{Key: key},
			})
		}

		out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{
				s.tableName: requests,
			},
		})
		if err != nil {
			return fmt.Errorf("BatchWriteItem delete (%d items): %w", len(requests), err)
		}

		// Version records have no TTL, so unprocessed deletes would orphan them.
		if pending := out.UnprocessedItems[s.tableName]; len(pending) > 0 {
			log.Warn().Int("unprocessed", len(pending)).Msg("Retrying unprocessed batch deletes")
			retry, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
				RequestItems: map[string][]types.WriteRequest{s.tableName: pending},
			})
			if err != nil {
				return fmt.Errorf("BatchWriteItem retry (%d items): %w", len(pending), err)
			}
			if left := len(retry.UnprocessedItems[s.tableName]); left > 0 {
				return fmt.Errorf("BatchWriteItem left %d items unprocessed", left)
			}
		}
	}
	return nil
}

// --- Project operations ---

func (s *DynamoStore) PutProject(ctx context.Context, p *Project) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if err := s.putItem(ctx, projectPK(p.ID), skMeta, p, 0); err != nil {
		return fmt.Errorf("put project %s: %w", p.ID, err)
	}
	log.Debug().Str("projectId", p.ID).Str("name", p.Name).Msg("Project persisted to DynamoDB")
	return nil
}

func (s *DynamoStore) GetProject(ctx context.Context, projectID string) (*Project, error) {
	var p Project
	found, err := s.getItem(ctx, projectPK(projectID), skMeta, &p)
	if err != nil {
		return nil, fmt.Errorf("get project %s: %w", projectID, err)
	}
	if !found {
		return nil, nil
	}
	p.ID = projectID
	return &p, nil
}

// --- Image operations ---

func (s *DynamoStore) PutImage(ctx context.Context, img *Image) error {
	if err := s.putItem(ctx, projectPK(img.ProjectID), skImage+img.ID, img, 0); err != nil {
		return fmt.Errorf("put image %s/%s: %w", img.ProjectID, img.ID, err)
	}

	log.Debug().
		Str("projectId", img.ProjectID).
		Str("imageId", img.ID).
		Str("status", string(img.Status)).
		Str("currentVersion", img.CurrentVersionID).
		Msg("Image persisted")
	return nil
}

func (s *DynamoStore) GetImage(ctx context.Context, projectID, imageID string) (*Image, error) {
	var img Image
	found, err := s.getItem(ctx, projectPK(projectID), skImage+imageID, &img)
	if err != nil {
		return nil, fmt.Errorf("get image %s/%s: %w", projectID, imageID, err)
	}
	if !found {
		return nil, nil
	}
	img.ID = imageID
	img.ProjectID = projectID
	return &img, nil
}

func (s *DynamoStore) ListImages(ctx context.Context, projectID string) ([]*Image, error) {
	items, err := s.queryBySKPrefix(ctx, projectID, skImage)
	if err != nil {
		return nil, fmt.Errorf("list images %s: %w", projectID, err)
	}

	images := make([]*Image, 0, len(items))
	for _, item := range items {
		var img Image
		if err := attributevalue.UnmarshalMap(item, &img); err != nil {
			return nil, fmt.Errorf("unmarshal image: %w", err)
		}
		img.ProjectID = projectID
		images = append(images, &img)
	}
	sort.SliceStable(images, func(i, j int) bool {
		return images[i].CreatedAt.Before(images[j].CreatedAt)
	})
	return images, nil
}

func (s *DynamoStore) DeleteImage(ctx context.Context, projectID, imageID string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: &s.tableName,
		Key:       itemKey(projectPK(projectID), skImage+imageID),
	})
	if err != nil {
		return fmt.Errorf("DeleteItem image %s/%s: %w", projectID, imageID, err)
	}
	log.Debug().Str("projectId", projectID).Str("imageId", imageID).Msg("Image deleted")
	return nil
}

// --- Version operations ---

func (s *DynamoStore) PutVersion(ctx context.Context, projectID string, v *ImageVersion) error {
	if err := s.putItem(ctx, projectPK(projectID), versionSK(v.ImageID, v.ID), v, 0); err != nil {
		return fmt.Errorf("put version %s/%s: %w", v.ImageID, v.ID, err)
	}
	log.Debug().
		Str("imageId", v.ImageID).
		Str("versionId", v.ID).
		Bool("pinned", v.Pinned).
		Msg("Image version persisted")
	return nil
}

func (s *DynamoStore) GetVersion(ctx context.Context, projectID, imageID, versionID string) (*ImageVersion, error) {
	var v ImageVersion
	found, err := s.getItem(ctx, projectPK(projectID), versionSK(imageID, versionID), &v)
	if err != nil {
		return nil, fmt.Errorf("get version %s/%s: %w", imageID, versionID, err)
	}
	if !found {
		return nil, nil
	}
	v.ID = versionID
	v.ImageID = imageID
	return &v, nil
}

func (s *DynamoStore) ListVersions(ctx context.Context, projectID, imageID string) ([]*ImageVersion, error) {
	items, err := s.queryBySKPrefix(ctx, projectID, skVersion+imageID+"#")
	if err != nil {
		return nil, fmt.Errorf("list versions %s: %w", imageID, err)
	}

	versions := make([]*ImageVersion, 0, len(items))
	for _, item := range items {
		var v ImageVersion
		if err := attributevalue.UnmarshalMap(item, &v); err != nil {
			return nil, fmt.Errorf("unmarshal version: %w", err)
		}
		versions = append(versions, &v)
	}
	sort.SliceStable(versions, func(i, j int) bool {
		return versions[i].CreatedAt.Before(versions[j].CreatedAt)
	})
	return versions, nil
}

func (s *DynamoStore) DeleteVersions(ctx context.Context, projectID, imageID string, versionIDs []string) error {
	if len(versionIDs) == 0 {
		return nil
	}
	keys := make([]map[string]types.AttributeValue, 0, len(versionIDs))
	for _, id := range versionIDs {
		keys = append(keys, itemKey(projectPK(projectID), versionSK(imageID, id)))
	}
	if err := s.batchDeleteKeys(ctx, keys); err != nil {
		return fmt.Errorf("delete versions of %s: %w", imageID, err)
	}
	log.Debug().Str("imageId", imageID).Int("count", len(versionIDs)).Msg("Image versions deleted")
	return nil
}

// --- Export operations ---

func (s *DynamoStore) PutExport(ctx context.Context, exp *MLSExport) error {
	if exp.CreatedAt.IsZero() {
		exp.CreatedAt = time.Now().UTC()
	}
	if err := s.putItem(ctx, projectPK(exp.ProjectID), skExport+exp.ID, exp, ExportTTL); err != nil {
		return fmt.Errorf("put export %s/%s: %w", exp.ProjectID, exp.ID, err)
	}
	log.Debug().
		Str("projectId", exp.ProjectID).
		Str("exportId", exp.ID).
		Str("status", string(exp.Status)).
		Int("files", len(exp.Files)).
		Msg("Export persisted")
	return nil
}

func (s *DynamoStore) GetExport(ctx context.Context, projectID, exportID string) (*MLSExport, error) {
	var exp MLSExport
	found, err := s.getItem(ctx, projectPK(projectID), skExport+exportID, &exp)
	if err != nil {
		return nil, fmt.Errorf("get export %s/%s: %w", projectID, exportID, err)
	}
	if !found {
		return nil, nil
	}
	exp.ID = exportID
	exp.ProjectID = projectID
	return &exp, nil
}

func (s *DynamoStore) UpdateExportStatus(ctx context.Context, projectID, exportID string, status ExportStatus, errMsg string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           &s.tableName,
		Key:                 itemKey(projectPK(projectID), skExport+exportID),
		ConditionExpression: aws.String("attribute_exists(PK)"),
		UpdateExpression:    aws.String("SET #s = :s, #e = :e"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status", // "status" is a DynamoDB reserved word
			"#e": "error",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":s": &types.AttributeValueMemberS{Value: string(status)},
			":e": &types.AttributeValueMemberS{Value: errMsg},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("update export status %s: %w", exportID, ErrNotFound)
		}
		return fmt.Errorf("update export status %s -> %s: %w", exportID, status, err)
	}

	log.Debug().Str("exportId", exportID).Str("status", string(status)).Msg("Export status updated")
	return nil
}
