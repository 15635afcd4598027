package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/nikhil/taskhub/internal/logger"
	"github.com/nikhil/taskhub/internal/membership"
	"github.com/nikhil/taskhub/internal/middleware"
	"github.com/nikhil/taskhub/internal/models"
)

type memoryBlobs struct {
	objects map[string][]byte
	types   map[string]string
}

func (m *memoryBlobs) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string) (string, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.objects[key] = body
	m.types[key] = contentType
	return "https://cdn.example.com/team-chat/" + key, nil
}

// members authorizes user 1 on team 5 only.
type members struct{}

func (members) AuthorizeMember(_ context.Context, teamID, userID int64) (membership.Decision, error) {
	if teamID == 5 && userID == 1 {
		return membership.Authorized, nil
	}
	return membership.Denied, nil
}

func uploadRequest(t *testing.T, userID int64, field, filename string, body []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		part, err := mw.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = part.Write(body)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/teams/5/chat-attachments", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req.WithContext(middleware.WithIdentity(req.Context(), models.Identity{UserID: userID}))
}

func attachmentRouter(blobs *memoryBlobs, maxBytes int64) *mux.Router {
	th := NewTeamHandler(nil, nil, members{}, blobs, maxBytes, logger.Nop())
	router := mux.NewRouter()
	router.HandleFunc("/api/teams/{team_id:[0-9]+}/chat-attachments", th.UploadAttachment).Methods(http.MethodPost)
	return router
}

func TestUploadAttachmentStoresUnderTeamPrefix(t *testing.T) {
	blobs := &memoryBlobs{objects: map[string][]byte{}, types: map[string]string{}}
	router := attachmentRouter(blobs, 0)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, uploadRequest(t, 1, "file", "notes.txt", []byte("agenda")))
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, strings.HasPrefix(resp["url"], "https://cdn.example.com/team-chat/team_chat/5/"), resp["url"])
	require.True(t, strings.HasSuffix(resp["url"], "-notes.txt"), resp["url"])

	require.Len(t, blobs.objects, 1)
	for key, body := range blobs.objects {
		require.True(t, strings.HasPrefix(key, "team_chat/5/"), key)
		require.Equal(t, "agenda", string(body))
		require.Equal(t, "application/octet-stream", blobs.types[key])
	}
}

func TestUploadAttachmentRejections(t *testing.T) {
	blobs := &memoryBlobs{objects: map[string][]byte{}, types: map[string]string{}}
	router := attachmentRouter(blobs, 0)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, uploadRequest(t, 2, "file", "notes.txt", []byte("agenda")))
	require.Equal(t, http.StatusForbidden, rec.Code, "non-member")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, uploadRequest(t, 1, "", "", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code, "missing file")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, uploadRequest(t, 1, "attachment", "notes.txt", []byte("agenda")))
	require.Equal(t, http.StatusBadRequest, rec.Code, "wrong field name")

	require.Empty(t, blobs.objects)
}

func TestStatusForMapsDomainErrors(t *testing.T) {
	cases := map[error]int{
		models.ErrUnauthorized:   http.StatusUnauthorized,
		models.ErrAlreadyMember:  http.StatusBadRequest,
		models.ErrCannotKickSelf: http.StatusBadRequest,
		models.ErrNotMember:      http.StatusForbidden,
		models.ErrNotLeader:      http.StatusForbidden,
		models.ErrNotFound:       http.StatusNotFound,
		io.ErrUnexpectedEOF:      http.StatusInternalServerError,
	}
	for err, want := range cases {
		require.Equal(t, want, statusFor(err), err.Error())
	}
}

func TestUploadAttachmentWithoutBlobStore(t *testing.T) {
	th := NewTeamHandler(nil, nil, members{}, nil, 0, logger.Nop())
	router := mux.NewRouter()
	router.HandleFunc("/api/teams/{team_id:[0-9]+}/chat-attachments", th.UploadAttachment).Methods(http.MethodPost)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, uploadRequest(t, 1, "file", "notes.txt", []byte("agenda")))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
