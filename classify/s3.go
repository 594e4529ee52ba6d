package classify

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// s3Prefix marks a tasting.yara_rules value that must be fetched from S3
// before compilation instead of read from the local filesystem.
const s3Prefix = "s3://"

// ResolveRulesPath makes path local if it names an s3:// bucket/prefix,
// downloading every object under the prefix into a fresh temp directory
// and returning its path. Non-S3 paths are returned unchanged. The
// returned cleanup func removes any temp directory created; callers
// should defer it even when err is nil and the path was local (it's a
// no-op in that case).
//
// Uses the AWS SDK's default credential chain, matching the teacher's
// S3 client construction in lode/client_s3.go.
func ResolveRulesPath(ctx context.Context, path string) (resolved string, cleanup func(), err error) {
	noop := func() {}
	if !strings.HasPrefix(path, s3Prefix) {
		return path, noop, nil
	}

	bucket, prefix := parseS3Path(strings.TrimPrefix(path, s3Prefix))
	if bucket == "" {
		return "", noop, fmt.Errorf("yara_rules %q: missing bucket", path)
	}

	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return "", noop, fmt.Errorf("yara_rules %q: load aws config: %w", path, err)
	}
	client := s3.NewFromConfig(awsCfg)

	dir, err := os.MkdirTemp("", "triage-yara-rules-")
	if err != nil {
		return "", noop, fmt.Errorf("yara_rules %q: temp dir: %w", path, err)
	}
	cleanup = func() { os.RemoveAll(dir) }

	keys, err := listRuleKeys(ctx, client, bucket, prefix)
	if err != nil {
		cleanup()
		return "", noop, fmt.Errorf("yara_rules %q: list: %w", path, err)
	}
	if len(keys) == 0 {
		cleanup()
		return "", noop, fmt.Errorf("yara_rules %q: no objects found under prefix", path)
	}

	for _, key := range keys {
		if err := downloadRuleObject(ctx, client, bucket, key, dir); err != nil {
			cleanup()
			return "", noop, fmt.Errorf("yara_rules %q: %w", path, err)
		}
	}

	// A single-object download compiles as one file; a multi-key prefix
	// compiles as a directory, same as a local path would.
	if len(keys) == 1 {
		return filepath.Join(dir, filepath.Base(keys[0])), cleanup, nil
	}
	return dir, cleanup, nil
}

// parseS3Path splits "bucket/prefix" into its parts, mirroring the
// teacher's ParseS3Path in lode/client_s3.go.
func parseS3Path(path string) (bucket, prefix string) {
	parts := strings.SplitN(path, "/", 2)
	bucket = parts[0]
	if len(parts) > 1 {
		prefix = parts[1]
	}
	return bucket, prefix
}

func listRuleKeys(ctx context.Context, client *s3.Client, bucket, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
		Bucket: &bucket,
		Prefix: &prefix,
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			if obj.Key == nil || strings.HasSuffix(*obj.Key, "/") {
				continue
			}
			keys = append(keys, *obj.Key)
		}
	}
	return keys, nil
}

func downloadRuleObject(ctx context.Context, client *s3.Client, bucket, key, destDir string) error {
	out, err := client.GetObject(ctx, &s3.GetObjectInput{Bucket: &bucket, Key: &key})
	if err != nil {
		return fmt.Errorf("get_object %q: %w", key, err)
	}
	defer out.Body.Close()

	f, err := os.Create(filepath.Join(destDir, filepath.Base(key)))
	if err != nil {
		return fmt.Errorf("create local file for %q: %w", key, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, out.Body); err != nil {
		return fmt.Errorf("download %q: %w", key, err)
	}
	return nil
}
