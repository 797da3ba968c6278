package store

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeDynamo is a tiny in-memory table keyed by PK and SK.
type fakeDynamo struct {
	items      map[string]map[string]types.AttributeValue
	batchCalls int
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]types.AttributeValue)}
}

func keyString(key map[string]types.AttributeValue) string {
	pk := key["PK"].(*types.AttributeValueMemberS).Value
	sk := key["SK"].(*types.AttributeValueMemberS).Value
	return pk + "|" + sk
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.items[keyString(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return &dynamodb.GetItemOutput{Item: f.items[keyString(in.Key)]}, nil
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	delete(f.items, keyString(in.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	item, ok := f.items[keyString(in.Key)]
	if !ok {
		return nil, &types.ConditionalCheckFailedException{}
	}
	item["status"] = in.ExpressionAttributeValues[":s"]
	item["error"] = in.ExpressionAttributeValues[":e"]
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	pk := in.ExpressionAttributeValues[":pk"].(*types.AttributeValueMemberS).Value
	prefix := in.ExpressionAttributeValues[":skPrefix"].(*types.AttributeValueMemberS).Value
	var keys []string
	for k := range f.items {
		if strings.HasPrefix(k, pk+"|"+prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := &dynamodb.QueryOutput{}
	for _, k := range keys {
		out.Items = append(out.Items, f.items[k])
	}
	return out, nil
}

func (f *fakeDynamo) BatchWriteItem(_ context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	f.batchCalls++
	for _, reqs := range in.RequestItems {
		for _, r := range reqs {
			delete(f.items, keyString(r.DeleteRequest.Key))
		}
	}
	return &dynamodb.BatchWriteItemOutput{}, nil
}

func TestDynamo_KeyLayout(t *testing.T) {
	fake := newFakeDynamo()
	s := NewDynamoStore(fake, "stager")
	ctx := context.Background()

	if err := s.PutImage(ctx, &Image{ID: "img-1", ProjectID: "p1", Status: StatusUploaded}); err != nil {
		t.Fatalf("PutImage: %v", err)
	}
	if err := s.PutVersion(ctx, "p1", &ImageVersion{ID: "v1", ImageID: "img-1"}); err != nil {
		t.Fatalf("PutVersion: %v", err)
	}
	if err := s.PutExport(ctx, &MLSExport{ID: "exp-1", ProjectID: "p1", Status: ExportProcessing}); err != nil {
		t.Fatalf("PutExport: %v", err)
	}

	for _, key := range []string{"PROJECT#p1|IMAGE#img-1", "PROJECT#p1|VERSION#img-1#v1", "PROJECT#p1|EXPORT#exp-1"} {
		if _, ok := fake.items[key]; !ok {
			t.Errorf("missing item %s", key)
		}
	}
	if _, ok := fake.items["PROJECT#p1|EXPORT#exp-1"]["expiresAt"]; !ok {
		t.Error("export item should carry a TTL")
	}
	if _, ok := fake.items["PROJECT#p1|IMAGE#img-1"]["expiresAt"]; ok {
		t.Error("image item must not expire")
	}
}

func TestDynamo_ListVersionsScopedToImage(t *testing.T) {
	fake := newFakeDynamo()
	s := NewDynamoStore(fake, "stager")
	ctx := context.Background()

	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	_ = s.PutVersion(ctx, "p1", &ImageVersion{ID: "z", ImageID: "img-1", CreatedAt: t0})
	_ = s.PutVersion(ctx, "p1", &ImageVersion{ID: "a", ImageID: "img-1", CreatedAt: t0.Add(time.Hour)})
	_ = s.PutVersion(ctx, "p1", &ImageVersion{ID: "x", ImageID: "img-10", CreatedAt: t0})

	versions, err := s.ListVersions(ctx, "p1", "img-1")
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if got := versionIDs(versions); len(got) != 2 || got[0] != "z" || got[1] != "a" {
		t.Errorf("ListVersions = %v, want [z a]", got)
	}
}

func TestDynamo_DeleteVersionsBatches(t *testing.T) {
	fake := newFakeDynamo()
	s := NewDynamoStore(fake, "stager")
	ctx := context.Background()

	var ids []string
	for i := 0; i < 30; i++ {
		id := string(rune('a'+i%26)) + string(rune('0'+i/26))
		ids = append(ids, id)
		_ = s.PutVersion(ctx, "p1", &ImageVersion{ID: id, ImageID: "img-1"})
	}
	if err := s.DeleteVersions(ctx, "p1", "img-1", ids); err != nil {
		t.Fatalf("DeleteVersions: %v", err)
	}
	if fake.batchCalls != 2 {
		t.Errorf("batch calls = %d, want 2", fake.batchCalls)
	}
	if len(fake.items) != 0 {
		t.Errorf("%d items left after delete", len(fake.items))
	}
}

func TestDynamo_UpdateExportStatusMissing(t *testing.T) {
	s := NewDynamoStore(newFakeDynamo(), "stager")
	err := s.UpdateExportStatus(context.Background(), "p1", "nope", ExportFailed, "boom")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDynamo_GetMissingReturnsNil(t *testing.T) {
	s := NewDynamoStore(newFakeDynamo(), "stager")
	img, err := s.GetImage(context.Background(), "p1", "missing")
	if err != nil || img != nil {
		t.Errorf("GetImage = %v, %v; want nil, nil", img, err)
	}
}
