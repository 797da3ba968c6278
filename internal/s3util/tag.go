package s3util

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// projectTag is the URL-encoded S3 object tagging string for cost allocation.
const projectTag = "Project=rooms-that-sell"

// ProjectTagging returns a pointer to the URL-encoded S3 object tagging string.
// Use as the Tagging field on PutObjectInput.
func ProjectTagging() *string {
	t := projectTag
	return &t
}

// TagObject applies the Project cost-allocation tag to an existing object.
// Browser uploads go through presigned URLs and cannot be tagged at creation.
func (s *S3Store) TagObject(ctx context.Context, key string) error {
	_, err := s.client.PutObjectTagging(ctx, &s3.PutObjectTaggingInput{
		Bucket: &s.bucket,
		Key:    &key,
		Tagging: &s3types.Tagging{
			TagSet: []s3types.Tag{
				{Key: aws.String("Project"), Value: aws.String("rooms-that-sell")},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("PutObjectTagging: %w", err)
	}
	return nil
}
