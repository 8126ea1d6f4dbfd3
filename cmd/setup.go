package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/spf13/cobra"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Provision DynamoDB tables and the S3 photo bucket",
	Long: `Create the DynamoDB tables and the S3 bucket used by the dynamo
backend. Existing resources are left untouched, so the command is safe
to run repeatedly.`,
	RunE: runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	ctx, cancel := timeoutContext()
	defer cancel()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return fmt.Errorf("loading AWS config: %w", err)
	}
	ddb := dynamodb.NewFromConfig(awsCfg)

	// faces table: one item per identity
	err = createTable(ctx, ddb, cfg.AWS.FacesTable, []ddbtypes.KeySchemaElement{
		{AttributeName: aws.String("face_id"), KeyType: ddbtypes.KeyTypeHash},
	}, []ddbtypes.AttributeDefinition{
		{AttributeName: aws.String("face_id"), AttributeType: ddbtypes.ScalarAttributeTypeS},
	})
	if err != nil {
		return err
	}

	// attendance table: one item per (session, identity) pair, the key
	// layout the conditional insert dedup relies on
	err = createTable(ctx, ddb, cfg.AWS.AttendanceTable, []ddbtypes.KeySchemaElement{
		{AttributeName: aws.String("session_id"), KeyType: ddbtypes.KeyTypeHash},
		{AttributeName: aws.String("face_id"), KeyType: ddbtypes.KeyTypeRange},
	}, []ddbtypes.AttributeDefinition{
		{AttributeName: aws.String("session_id"), AttributeType: ddbtypes.ScalarAttributeTypeS},
		{AttributeName: aws.String("face_id"), AttributeType: ddbtypes.ScalarAttributeTypeS},
	})
	if err != nil {
		return err
	}

	if err := createBucket(ctx, s3.NewFromConfig(awsCfg), cfg.AWS.Bucket, cfg.AWS.Region); err != nil {
		return err
	}

	fmt.Println("Setup complete")
	return nil
}

func createTable(ctx context.Context, ddb *dynamodb.Client, name string,
	keySchema []ddbtypes.KeySchemaElement, attrs []ddbtypes.AttributeDefinition) error {
	_, err := ddb.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:            aws.String(name),
		KeySchema:            keySchema,
		AttributeDefinitions: attrs,
		BillingMode:          ddbtypes.BillingModePayPerRequest,
	})
	if err != nil {
		var exists *ddbtypes.ResourceInUseException
		if errors.As(err, &exists) {
			fmt.Printf("Table %s already exists\n", name)
			return nil
		}
		return fmt.Errorf("creating table %s: %w", name, err)
	}
	fmt.Printf("Created table %s\n", name)
	return nil
}

func createBucket(ctx context.Context, client *s3.Client, bucket, region string) error {
	input := &s3.CreateBucketInput{Bucket: aws.String(bucket)}
	if region != "us-east-1" {
		input.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
			LocationConstraint: s3types.BucketLocationConstraint(region),
		}
	}
	_, err := client.CreateBucket(ctx, input)
	if err != nil {
		var owned *s3types.BucketAlreadyOwnedByYou
		if errors.As(err, &owned) {
			fmt.Printf("Bucket %s already exists\n", bucket)
			return nil
		}
		return fmt.Errorf("creating bucket %s: %w", bucket, err)
	}
	fmt.Printf("Created bucket %s\n", bucket)
	return nil
}
