package vchat

import (
	"bytes"
	"fmt"
	"time"

	"resty.dev/v3"
)

// uploadTimeout is generous: media uploads ride slow uplinks.
const uploadTimeout = 60 * time.Second

// uploader posts binary media payloads to the endpoint announced at init.
// The upload boundary is a plain request/response exchange, deliberately
// outside the command protocol.
type uploader struct {
	client *resty.Client
}

func newUploader(accessToken string) *uploader {
	client := resty.New().SetTimeout(uploadTimeout)
	if accessToken != "" {
		client.SetAuthToken(accessToken)
	}
	return &uploader{client: client}
}

// upload never returns an error: transport and server failures are folded
// into the result shape, matching the rest of the session's tolerance for
// runtime conditions.
func (u *uploader) upload(url string, data []byte, filename, messageKey string) *UploadResult {
	if filename == "" {
		filename = "upload.bin"
	}

	res, err := u.client.R().
		SetFileReader("file", filename, bytes.NewReader(data)).
		SetFormData(map[string]string{"messageKey": messageKey}).
		Post(url)
	if err != nil {
		return &UploadResult{Successfull: false, Error: err.Error()}
	}
	if !res.IsSuccess() {
		return &UploadResult{
			Successfull: false,
			Error:       fmt.Sprintf("upload rejected with status %d", res.StatusCode()),
		}
	}
	return &UploadResult{Successfull: true}
}

func (u *uploader) close() {
	_ = u.client.Close()
}
