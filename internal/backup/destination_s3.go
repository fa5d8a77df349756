package backup

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// S3Destination mirrors archives to an S3 bucket. A custom endpoint
// switches the client to path-style addressing for MinIO and other
// S3-compatible stores.
type S3Destination struct {
	config *DestinationConfig
	client *s3.S3
}

func NewS3Destination(config *DestinationConfig) (*S3Destination, error) {
	awsConfig := &aws.Config{
		Region: aws.String(config.S3Region),
		Credentials: credentials.NewStaticCredentials(
			config.S3AccessKey, config.S3SecretKey, ""),
	}
	if config.S3Endpoint != "" {
		awsConfig.Endpoint = aws.String(config.S3Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	log.Printf("[S3Dest] Using bucket %s (region=%s)", config.S3Bucket, config.S3Region)
	return &S3Destination{config: config, client: s3.New(sess)}, nil
}

func (sd *S3Destination) key(filename string) string {
	return path.Join(sd.config.Path, filename)
}

func (sd *S3Destination) Upload(filename string, reader io.Reader, sizeBytes int64) error {
	key := sd.key(filename)
	log.Printf("[S3Dest] Uploading s3://%s/%s (%d bytes)", sd.config.S3Bucket, key, sizeBytes)

	// PutObject needs a seekable body. Archives are capped by what a
	// world directory holds, so buffering is acceptable; multipart
	// upload is the escape hatch if worlds outgrow memory.
	data, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("failed to read archive: %w", err)
	}

	_, err = sd.client.PutObject(&s3.PutObjectInput{
		Bucket:        aws.String(sd.config.S3Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(sizeBytes),
		ContentType:   aws.String("application/zip"),
		StorageClass:  aws.String("STANDARD"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}
	return nil
}

func (sd *S3Destination) Download(filename string, writer io.Writer) error {
	result, err := sd.client.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(sd.config.S3Bucket),
		Key:    aws.String(sd.key(filename)),
	})
	if err != nil {
		return fmt.Errorf("failed to get object from S3: %w", err)
	}
	defer result.Body.Close()

	if _, err := io.Copy(writer, result.Body); err != nil {
		return fmt.Errorf("failed to read S3 object: %w", err)
	}
	return nil
}

func (sd *S3Destination) Delete(filename string) error {
	_, err := sd.client.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(sd.config.S3Bucket),
		Key:    aws.String(sd.key(filename)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete from S3: %w", err)
	}
	return nil
}

func (sd *S3Destination) List() ([]BackupFile, error) {
	prefix := sd.config.Path
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	result, err := sd.client.ListObjectsV2(&s3.ListObjectsV2Input{
		Bucket: aws.String(sd.config.S3Bucket),
		Prefix: aws.String(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list S3 objects: %w", err)
	}

	var files []BackupFile
	for _, obj := range result.Contents {
		if strings.HasSuffix(*obj.Key, "/") {
			continue
		}
		files = append(files, BackupFile{
			Filename:  path.Base(*obj.Key),
			SizeBytes: *obj.Size,
			CreatedAt: obj.LastModified.Unix(),
		})
	}
	return files, nil
}

func (sd *S3Destination) GetType() string {
	return "s3"
}
