package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
)

// Body is a request payload together with its wire encoding.
type Body interface {
	Encode() (contentType string, r io.Reader, err error)
}

// JSONBody encodes Value as application/json
type JSONBody struct {
	Value any
}

func (b JSONBody) Encode() (string, io.Reader, error) {
	payload, err := json.Marshal(b.Value)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal body: %w", err)
	}
	return "application/json", bytes.NewReader(payload), nil
}

// FormField is a plain text multipart field
type FormField struct {
	Name  string
	Value string
}

// FormFile is a binary multipart part with an explicit filename and content type
type FormFile struct {
	FieldName   string
	FileName    string
	ContentType string
	Data        []byte
}

// MultipartBody encodes files then fields as multipart/form-data, in slice order.
type MultipartBody struct {
	Files  []FormFile
	Fields []FormField
}

func (b MultipartBody) Encode() (string, io.Reader, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for _, f := range b.Files {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.FieldName, f.FileName))
		contentType := f.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		header.Set("Content-Type", contentType)

		part, err := writer.CreatePart(header)
		if err != nil {
			return "", nil, fmt.Errorf("failed to create part %s: %w", f.FieldName, err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return "", nil, fmt.Errorf("failed to write part %s: %w", f.FieldName, err)
		}
	}

	for _, f := range b.Fields {
		if err := writer.WriteField(f.Name, f.Value); err != nil {
			return "", nil, fmt.Errorf("failed to write %s: %w", f.Name, err)
		}
	}

	if err := writer.Close(); err != nil {
		return "", nil, fmt.Errorf("failed to close writer: %w", err)
	}
	return writer.FormDataContentType(), body, nil
}

// Field returns the value of the named text field.
func (b MultipartBody) Field(name string) (string, bool) {
	for _, f := range b.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// File returns the named file part.
func (b MultipartBody) File(fieldName string) (FormFile, bool) {
	for _, f := range b.Files {
		if f.FieldName == fieldName {
			return f, true
		}
	}
	return FormFile{}, false
}
