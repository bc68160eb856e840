package session

import (
	"fmt"
	"net/http"

	"orthoview/pkg/config"
	"orthoview/pkg/source"
)

// OpenSource builds the storage backend described by cfg.
func OpenSource(cfg config.SourceConfig) (source.Source, error) {
	switch cfg.Kind {
	case config.SourceFS:
		src, err := source.NewLocal(cfg.Root)
		if err != nil {
			return nil, err
		}
		return src, nil
	case config.SourceHTTP:
		src, err := source.NewHTTP(cfg.Root, &http.Client{Timeout: cfg.Timeout})
		if err != nil {
			return nil, err
		}
		return src, nil
	case config.SourceS3:
		src, err := source.NewS3(source.S3Config{
			Endpoint:  cfg.S3.Endpoint,
			Bucket:    cfg.S3.Bucket,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			UseSSL:    cfg.S3.UseSSL,
			Prefix:    cfg.S3.Prefix,
		})
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.Kind)
	}
}
