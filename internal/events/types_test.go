package events

import (
	"encoding/json"
	"testing"

	learnit_errors "learnit-events/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envelopeOf(eventType string, payload map[string]any) Envelope {
	return Envelope{EventType: eventType, EventID: "e-1", SchemaVersion: 1, Payload: payload}
}

func TestDecode_Variants(t *testing.T) {
	courseID := int64(3)

	tests := []struct {
		name string
		env  Envelope
		want Event
	}{
		{
			name: "thread created with course",
			env:  envelopeOf(EventTypeThreadCreated, map[string]any{"threadId": json.Number("7"), "courseId": float64(3)}),
			want: ThreadCreated{ThreadID: 7, CourseID: &courseID},
		},
		{
			name: "thread created without course",
			env:  envelopeOf(EventTypeThreadCreated, map[string]any{"threadId": 7}),
			want: ThreadCreated{ThreadID: 7},
		},
		{
			name: "comment added",
			env:  envelopeOf(EventTypeCommentAdded, map[string]any{"threadId": "12", "commentId": 5, "extra": true}),
			want: CommentAdded{ThreadID: 12, CommentID: int64Ptr(5)},
		},
		{
			name: "thread vote",
			env:  envelopeOf(EventTypeVoteCast, map[string]any{"targetType": "THREAD", "targetId": json.Number("4"), "voteType": "upvote"}),
			want: VoteCast{TargetType: "THREAD", TargetID: 4, VoteType: "upvote"},
		},
		{
			name: "comment vote carries only the target type",
			env:  envelopeOf(EventTypeVoteCast, map[string]any{"targetType": "COMMENT", "targetId": 99, "voteType": "UPVOTE"}),
			want: VoteCast{TargetType: "COMMENT"},
		},
		{
			name: "thread viewed",
			env:  envelopeOf(EventTypeThreadViewed, map[string]any{"threadId": int64(1)}),
			want: ThreadViewed{ThreadID: 1},
		},
		{
			name: "unknown type",
			env:  envelopeOf("thread_pinned", map[string]any{"threadId": 1}),
			want: Unknown{Name: "thread_pinned"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.env)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.env.EventType, got.EventType())
		})
	}
}

func TestDecode_MalformedPayload(t *testing.T) {
	tests := []struct {
		name string
		env  Envelope
	}{
		{"thread created without id", envelopeOf(EventTypeThreadCreated, map[string]any{"courseId": 1})},
		{"comment without thread", envelopeOf(EventTypeCommentAdded, map[string]any{})},
		{"viewed with nil payload", envelopeOf(EventTypeThreadViewed, nil)},
		{"fractional id", envelopeOf(EventTypeThreadViewed, map[string]any{"threadId": 1.5})},
		{"non numeric id", envelopeOf(EventTypeThreadViewed, map[string]any{"threadId": "abc"})},
		{"thread vote without target id", envelopeOf(EventTypeVoteCast, map[string]any{"targetType": "THREAD", "voteType": "UPVOTE"})},
		{"thread vote without vote type", envelopeOf(EventTypeVoteCast, map[string]any{"targetType": "THREAD", "targetId": 1})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.env)
			require.Error(t, err)
			assert.ErrorIs(t, err, learnit_errors.ErrMalformedPayload)
		})
	}
}

func TestToInt64(t *testing.T) {
	tests := []struct {
		in     any
		want   int64
		wantOK bool
	}{
		{int(5), 5, true},
		{int32(-2), -2, true},
		{uint64(9), 9, true},
		{float64(42), 42, true},
		{float64(42.1), 0, false},
		{json.Number("9007199254740993"), 9007199254740993, true},
		{json.Number("3.0"), 3, true},
		{" 17 ", 17, true},
		{"1e3", 0, false},
		{true, 0, false},
		{nil, 0, false},
	}

	for _, tt := range tests {
		got, ok := ToInt64(tt.in)
		assert.Equal(t, tt.wantOK, ok, "input %#v", tt.in)
		assert.Equal(t, tt.want, got, "input %#v", tt.in)
	}
}

func int64Ptr(v int64) *int64 { return &v }
