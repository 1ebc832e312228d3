package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pawnmarket-contract-engine/internal/api_gateway/service"
)

// uploadField is the multipart field carrying slip and signature images.
const uploadField = "file"

var errUploadTooLarge = errors.New("upload exceeds the size limit")

// readUpload loads the multipart file into memory. The content type is
// sniffed from the bytes rather than trusted from the client.
func readUpload(c *gin.Context) (service.Upload, error) {
	fh, err := c.FormFile(uploadField)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return service.Upload{}, errUploadTooLarge
		}
		return service.Upload{}, fmt.Errorf("missing %q form file: %w", uploadField, err)
	}

	f, err := fh.Open()
	if err != nil {
		return service.Upload{}, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return service.Upload{}, fmt.Errorf("failed to read upload: %w", err)
	}

	return service.Upload{
		Filename:    fh.Filename,
		ContentType: http.DetectContentType(data),
		Data:        data,
	}, nil
}

// respondUploadError answers a failed readUpload.
func respondUploadError(c *gin.Context, err error) {
	if errors.Is(err, errUploadTooLarge) {
		RespondWithError(c, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", err.Error())
		return
	}
	RespondBadRequest(c, err.Error())
}
