// Package avatar stores user avatars on Cloudinary.
package avatar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

const uploadTimeout = 20 * time.Second

// imageUploader is the part of the Cloudinary upload API used here.
type imageUploader interface {
	Upload(ctx context.Context, file interface{}, params uploader.UploadParams) (*uploader.UploadResult, error)
}

// Cloudinary uploads avatars under a fixed public ID so that a new upload
// replaces the previous one.
type Cloudinary struct {
	upload imageUploader
}

// NewCloudinary builds an uploader from a CLOUDINARY_URL of the form
// cloudinary://<key>:<secret>@<cloud name>.
func NewCloudinary(cloudinaryURL string) (*Cloudinary, error) {
	cld, err := cloudinary.NewFromURL(cloudinaryURL)
	if err != nil {
		return nil, fmt.Errorf("avatar: configuring cloudinary: %w", err)
	}
	cld.Config.URL.Secure = true
	return &Cloudinary{upload: &cld.Upload}, nil
}

// Upload stores r as an image at publicID and returns its HTTPS URL.
func (c *Cloudinary) Upload(ctx context.Context, publicID string, r io.Reader) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	res, err := c.upload.Upload(ctx, r, uploader.UploadParams{
		PublicID:     publicID,
		Overwrite:    boolPtr(true),
		Invalidate:   boolPtr(true),
		ResourceType: "image",
	})
	if err != nil {
		return "", fmt.Errorf("avatar: uploading %s: %w", publicID, err)
	}
	if res.Error.Message != "" {
		return "", fmt.Errorf("avatar: uploading %s: %w", publicID, errors.New(res.Error.Message))
	}
	if res.SecureURL == "" {
		return "", fmt.Errorf("avatar: uploading %s: empty secure url", publicID)
	}
	return res.SecureURL, nil
}

func boolPtr(b bool) *bool { return &b }
