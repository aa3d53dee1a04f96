package ingest

import (
	"bytes"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"strings"
)

// extractBodies extracts the text/plain and text/html contents from a
// message. Non-multipart messages are returned whole as text; nested
// multiparts are walked one level deep, which covers the usual
// multipart/alternative layout of mail client replies.
func extractBodies(msg *mail.Message) (text string, html string, err error) {
	contentType := msg.Header.Get("Content-Type")

	mediaType, params, parseErr := mime.ParseMediaType(contentType)
	if contentType == "" || parseErr != nil || !strings.HasPrefix(mediaType, "multipart/") {
		bodyBytes, err := io.ReadAll(msg.Body)
		if err != nil {
			return "", "", err
		}
		if strings.Contains(strings.ToLower(mediaType), "text/html") {
			return "", string(bodyBytes), nil
		}
		return string(bodyBytes), "", nil
	}

	boundary, ok := params["boundary"]
	if !ok {
		bodyBytes, err := io.ReadAll(msg.Body)
		if err != nil {
			return "", "", err
		}
		return string(bodyBytes), "", nil
	}

	textBuf, htmlBuf := &bytes.Buffer{}, &bytes.Buffer{}
	if err := walkParts(msg.Body, boundary, textBuf, htmlBuf, 0); err != nil && textBuf.Len() == 0 && htmlBuf.Len() == 0 {
		return "", "", err
	}

	return textBuf.String(), htmlBuf.String(), nil
}

// walkParts collects text parts from a multipart body
func walkParts(r io.Reader, boundary string, textBuf, htmlBuf *bytes.Buffer, depth int) error {
	if depth > 2 {
		return nil
	}

	mr := multipart.NewReader(r, boundary)
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		partType := part.Header.Get("Content-Type")
		mediaType, params, err := mime.ParseMediaType(partType)
		if err != nil {
			mediaType = strings.ToLower(partType)
		}

		switch {
		case strings.HasPrefix(mediaType, "text/plain"):
			if _, err := io.Copy(textBuf, part); err == nil {
				textBuf.WriteString("\n")
			}
		case strings.HasPrefix(mediaType, "text/html"):
			io.Copy(htmlBuf, part)
		case strings.HasPrefix(mediaType, "multipart/"):
			if inner, ok := params["boundary"]; ok {
				walkParts(part, inner, textBuf, htmlBuf, depth+1)
			}
		}
		// Attachments and other parts are skipped
	}
}
