package models

// FileContent is the decoded view of one uploaded file.
// Content holds either the file's text or a placeholder message when the
// bytes could not be decoded.
type FileContent struct {
	Filename string `json:"filename" msgpack:"filename"`
	Content  string `json:"content" msgpack:"content"`
}

// UploadResponse is the body returned for a successful upload batch.
type UploadResponse struct {
	Files []FileContent `json:"files" msgpack:"files"`
}

// NewUploadResponse creates a response whose Files slice is never nil,
// so an empty batch serializes as [] rather than null.
func NewUploadResponse(files []FileContent) *UploadResponse {
	if files == nil {
		files = make([]FileContent, 0)
	}
	return &UploadResponse{Files: files}
}
