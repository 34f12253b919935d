package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/symptom-intake/internal/scheduling"
	"github.com/wolfman30/symptom-intake/internal/triage"
)

// mockS3Client records PutObject/GetObject calls for testing.
type mockS3Client struct {
	putCalls []putCall
	objects  map[string][]byte
	getErr   error
}

type putCall struct {
	bucket string
	key    string
	body   []byte
}

func newMockS3() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte)}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, _ := io.ReadAll(input.Body)
	m.putCalls = append(m.putCalls, putCall{bucket: *input.Bucket, key: *input.Key, body: body})
	m.objects[*input.Key] = body
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	data, ok := m.objects[*input.Key]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

var archivedAt = time.Date(2026, 10, 19, 15, 0, 0, 0, time.UTC)

func completedState(id string) triage.State {
	state := triage.NewState(id, "patient-42", "en", archivedAt.Add(-10*time.Minute))
	slot := scheduling.CandidateSlot{Start: archivedAt.Add(24 * time.Hour), End: archivedAt.Add(24*time.Hour + 30*time.Minute), DisplayLabel: "Tue Oct 20 at 3:00 PM"}
	state.Phase = triage.Completed{
		Symptom:   "headache",
		Asked:     2,
		Selection: &triage.SlotChoice{Slot: slot, DoctorID: "dr-a"},
		Summary:   triage.SessionSummary{Text: "Two days of headache."},
	}
	state.Answers = []triage.Answer{
		{Question: "What brings you in?", Answer: "headache", Symptom: "headache"},
		{Question: "How can we reach you?", Answer: "call 330-333-2654 or a@b.com", Symptom: "headache"},
	}
	state.Priority = triage.PriorityHigh
	return state
}

func TestStore_ArchiveSession(t *testing.T) {
	mock := newMockS3()
	store := NewStore(mock, "test-bucket", nil)
	store.now = func() time.Time { return archivedAt }

	state := completedState("sess-123")
	require.NoError(t, store.ArchiveSession(context.Background(), state))

	// Record plus manifest.
	require.Len(t, mock.putCalls, 2)
	assert.Equal(t, "sessions/v1/by-date/2026/10/19/sess-123.json", mock.putCalls[0].key)
	assert.Equal(t, "test-bucket", mock.putCalls[0].bucket)

	var decoded SessionRecord
	require.NoError(t, json.Unmarshal(mock.putCalls[0].body, &decoded))
	assert.Equal(t, "sess-123", decoded.SessionID)
	assert.Equal(t, "headache", decoded.Symptom)
	assert.Equal(t, HashPatientID("patient-42"), decoded.PatientHash)
	assert.NotContains(t, string(mock.putCalls[0].body), "patient-42")
	assert.NotContains(t, string(mock.putCalls[0].body), "a@b.com")
	require.NotNil(t, decoded.Selection)
	assert.Equal(t, "dr-a", decoded.Selection.DoctorID)

	// Caller's answers are untouched.
	assert.Contains(t, state.Answers[1].Answer, "a@b.com")

	assert.Equal(t, "sessions/v1/manifests/2026-10.jsonl", mock.putCalls[1].key)
	var entry ManifestEntry
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(mock.putCalls[1].body), &entry))
	assert.Equal(t, "sess-123", entry.SessionID)
	assert.True(t, entry.Booked)
	assert.Equal(t, "HIGH", entry.Priority)
}

func TestStore_Disabled(t *testing.T) {
	store := NewStore(nil, "", nil)
	assert.False(t, store.Enabled())
	assert.NoError(t, store.ArchiveSession(context.Background(), completedState("s")))
}

func TestStore_ManifestAppend(t *testing.T) {
	mock := newMockS3()
	store := NewStore(mock, "test-bucket", nil)
	store.now = func() time.Time { return archivedAt }

	require.NoError(t, store.ArchiveSession(context.Background(), completedState("sess-1")))
	require.NoError(t, store.ArchiveSession(context.Background(), completedState("sess-2")))

	lastPut := mock.putCalls[len(mock.putCalls)-1]
	lines := bytes.Split(bytes.TrimSpace(lastPut.body), []byte("\n"))
	assert.Len(t, lines, 2)
}

func TestStore_ManifestFailureDoesNotFailArchive(t *testing.T) {
	mock := newMockS3()
	mock.getErr = errors.New("access denied")
	store := NewStore(mock, "test-bucket", nil)

	require.NoError(t, store.ArchiveSession(context.Background(), completedState("sess-1")))
	assert.Len(t, mock.putCalls, 1)
}
