// Package uploaduser provisions the IAM user whose access key the S3 report
// sink uploads with. The user may only put objects under the report prefix.
package uploaduser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/iam/types"
)

// DefaultPath is the IAM path of users created by Apply
const DefaultPath = "/netlogon-courier/"

// IAMAPI is the subset of *iam.Client used to provision the user
type IAMAPI interface {
	GetUser(ctx context.Context, params *iam.GetUserInput, optFns ...func(*iam.Options)) (*iam.GetUserOutput, error)
	CreateUser(ctx context.Context, params *iam.CreateUserInput, optFns ...func(*iam.Options)) (*iam.CreateUserOutput, error)
	PutUserPolicy(ctx context.Context, params *iam.PutUserPolicyInput, optFns ...func(*iam.Options)) (*iam.PutUserPolicyOutput, error)
	ListAccessKeys(ctx context.Context, params *iam.ListAccessKeysInput, optFns ...func(*iam.Options)) (*iam.ListAccessKeysOutput, error)
	CreateAccessKey(ctx context.Context, params *iam.CreateAccessKeyInput, optFns ...func(*iam.Options)) (*iam.CreateAccessKeyOutput, error)
}

// Spec describes the user to provision
type Spec struct {
	UserName string
	// Path is the IAM path of the user, DefaultPath when empty
	Path   string
	Bucket string
	// Prefix restricts uploads to keys under it, as configured in s3.prefix
	Prefix string
}

// PolicyResource returns the object ARN pattern the user may write to
func PolicyResource(bucket, prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return fmt.Sprintf("arn:aws:s3:::%s/*", bucket)
	}
	return fmt.Sprintf("arn:aws:s3:::%s/%s/*", bucket, prefix)
}

// PolicyDocument returns the inline policy granting s3:PutObject on the
// report keys only
func PolicyDocument(bucket, prefix string) (string, error) {
	policyDoc := map[string]interface{}{
		"Version": "2012-10-17",
		"Statement": []map[string]interface{}{
			{
				"Effect":   "Allow",
				"Action":   "s3:PutObject",
				"Resource": PolicyResource(bucket, prefix),
			},
		},
	}

	policyJSON, err := json.Marshal(policyDoc)
	if err != nil {
		return "", fmt.Errorf("marshal policy document failed: %w", err)
	}
	return string(policyJSON), nil
}

// Apply ensures the upload user exists with its policy and an access key.
// It is idempotent: an existing user keeps its key, whose secret is then
// not returned.
func Apply(ctx context.Context, iamClient IAMAPI, spec Spec) (*Result, error) {
	if spec.UserName == "" {
		return nil, fmt.Errorf("user name cannot be empty")
	}
	if spec.Bucket == "" {
		return nil, fmt.Errorf("bucket cannot be empty")
	}
	if spec.Path == "" {
		spec.Path = DefaultPath
	}

	if err := ensureUser(ctx, iamClient, spec); err != nil {
		return nil, fmt.Errorf("failed to ensure user: %w", err)
	}

	if err := ensurePolicy(ctx, iamClient, spec); err != nil {
		return nil, fmt.Errorf("failed to ensure policy: %w", err)
	}

	result, err := ensureAccessKey(ctx, iamClient, spec.UserName)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure access key: %w", err)
	}
	result.UserName = spec.UserName
	result.PolicyResource = PolicyResource(spec.Bucket, spec.Prefix)

	return result, nil
}

// ensureUser creates the user if it doesn't exist, or validates the existing user's path.
func ensureUser(ctx context.Context, iamClient IAMAPI, spec Spec) error {
	getUserOutput, err := iamClient.GetUser(ctx, &iam.GetUserInput{
		UserName: aws.String(spec.UserName),
	})

	if err == nil {
		if getUserOutput.User != nil && getUserOutput.User.Path != nil && *getUserOutput.User.Path != spec.Path {
			return fmt.Errorf("user already exists with conflicting path: %s", *getUserOutput.User.Path)
		}
		return nil
	}

	var noSuchEntity *types.NoSuchEntityException
	if !errors.As(err, &noSuchEntity) {
		return fmt.Errorf("get user failed: %w", err)
	}

	_, err = iamClient.CreateUser(ctx, &iam.CreateUserInput{
		UserName: aws.String(spec.UserName),
		Path:     aws.String(spec.Path),
	})
	if err != nil {
		return fmt.Errorf("create user failed: %w", err)
	}

	return nil
}

// ensurePolicy puts the inline upload policy; putting it again replaces it,
// so a changed bucket or prefix takes effect on the next Apply.
func ensurePolicy(ctx context.Context, iamClient IAMAPI, spec Spec) error {
	policyJSON, err := PolicyDocument(spec.Bucket, spec.Prefix)
	if err != nil {
		return err
	}

	_, err = iamClient.PutUserPolicy(ctx, &iam.PutUserPolicyInput{
		UserName:       aws.String(spec.UserName),
		PolicyName:     aws.String(spec.UserName),
		PolicyDocument: aws.String(policyJSON),
	})
	if err != nil {
		return fmt.Errorf("put user policy failed: %w", err)
	}

	return nil
}

func ensureAccessKey(ctx context.Context, iamClient IAMAPI, userName string) (*Result, error) {
	listOutput, err := iamClient.ListAccessKeys(ctx, &iam.ListAccessKeysInput{
		UserName: aws.String(userName),
	})
	if err != nil {
		return nil, fmt.Errorf("list access keys failed: %w", err)
	}

	if len(listOutput.AccessKeyMetadata) > 0 {
		return &Result{
			AccessKeyId: aws.ToString(listOutput.AccessKeyMetadata[0].AccessKeyId),
		}, nil
	}

	createOutput, err := iamClient.CreateAccessKey(ctx, &iam.CreateAccessKeyInput{
		UserName: aws.String(userName),
	})
	if err != nil {
		return nil, fmt.Errorf("create access key failed: %w", err)
	}

	return &Result{
		AccessKeyId:     aws.ToString(createOutput.AccessKey.AccessKeyId),
		SecretAccessKey: createOutput.AccessKey.SecretAccessKey,
	}, nil
}
