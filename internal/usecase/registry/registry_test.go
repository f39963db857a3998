package registry

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatkit/internal/domain"
	"chatkit/internal/infra/config"
	"chatkit/internal/infra/metrics"
)

func newRegistry(t *testing.T, actions config.ActionsConfig) (*Registry, *metrics.Metrics) {
	t.Helper()
	a, err := NewActionSchemas(actions)
	require.NoError(t, err)
	m := metrics.New(config.MetricsConfig{Enabled: true, Namespace: "test"}, prometheus.NewRegistry())
	return New(a, m, nil), m
}

func TestParseEveryUnion(t *testing.T) {
	r, _ := newRegistry(t, config.ActionsConfig{})
	tests := []struct {
		union domain.Union
		data  string
		want  any
	}{
		{domain.UnionStatus, `{"type":"locked","reason":"review"}`, domain.LockedStatus{Reason: domain.Ptr("review")}},
		{domain.UnionUserContent, `{"type":"input_text","text":"hi"}`, domain.UserMessageTextContent{Text: "hi"}},
		{domain.UnionSource, `{"type":"file","title":"Q3","filename":"q3.pdf"}`,
			domain.FileSource{SourceBase: domain.SourceBase{Title: "Q3"}, Filename: "q3.pdf"}},
		{domain.UnionUpdate, `{"type":"assistant_message.content_part.text_delta","content_index":0,"delta":"He"}`,
			domain.ContentPartTextDelta{ContentIndex: 0, Delta: "He"}},
		{domain.UnionEvent, `{"type":"thread.item.removed","item_id":"msg_1"}`,
			domain.ThreadItemRemovedEvent{ItemID: "msg_1"}},
		{domain.UnionRequest, `{"type":"threads.delete","params":{"thread_id":"thr_1"}}`,
			domain.ThreadsDeleteReq{Params: domain.ThreadDeleteParams{ThreadID: "thr_1"}, Metadata: domain.JSONMap{}}},
	}
	for _, tt := range tests {
		t.Run(string(tt.union), func(t *testing.T) {
			got, err := r.Parse(tt.union, []byte(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseItemAndTaskAndAttachment(t *testing.T) {
	r, _ := newRegistry(t, config.ActionsConfig{})

	item, err := r.Parse(domain.UnionItem, []byte(`{"type":"end_of_turn","id":"eot_1","thread_id":"thr_1","created_at":"2024-05-01T10:00:00Z"}`))
	require.NoError(t, err)
	assert.Equal(t, domain.ItemEndOfTurn, item.(domain.ThreadItem).ItemType())

	task, err := r.Parse(domain.UnionTask, []byte(`{"type":"thought","content":"thinking"}`))
	require.NoError(t, err)
	assert.Equal(t, domain.IndicatorNone, task.(domain.Task).Indicator())

	att, err := r.Parse(domain.UnionAttachment, []byte(`{"type":"file","id":"att_1","name":"a.txt","mime_type":"text/plain"}`))
	require.NoError(t, err)
	assert.Equal(t, domain.AttachmentFile, att.(domain.Attachment).AttachmentType())
}

func TestParseFailureCountsMetric(t *testing.T) {
	r, m := newRegistry(t, config.ActionsConfig{})

	_, err := r.Parse(domain.UnionEvent, []byte(`{"type":"thread.exploded"}`))
	require.Error(t, err)

	var uv *domain.UnknownVariantError
	require.ErrorAs(t, err, &uv)
	assert.Equal(t, "thread.exploded", uv.Tag)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ValidationFailures.WithLabelValues("event")))

	_, err = r.ParseEvent([]byte(`{"item_id":"x"}`))
	assert.ErrorIs(t, err, domain.ErrMissingDiscriminator)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ValidationFailures.WithLabelValues("event")))
}

func TestParseUnknownUnion(t *testing.T) {
	r, _ := newRegistry(t, config.ActionsConfig{})
	_, err := r.Parse("widget", []byte(`{}`))
	assert.ErrorIs(t, err, ErrUnknownUnion)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestTags(t *testing.T) {
	tags, err := Tags(domain.UnionStatus)
	require.NoError(t, err)
	assert.Equal(t, []string{"active", "locked", "closed"}, tags)

	tags, err = Tags(domain.UnionRequest)
	require.NoError(t, err)
	assert.Len(t, tags, 13)

	// The returned slice is a copy.
	tags[0] = "mutated"
	again, _ := Tags(domain.UnionRequest)
	assert.Equal(t, "threads.get_by_id", again[0])

	_, err = Tags("nope")
	assert.ErrorIs(t, err, ErrUnknownUnion)
}

const submitSchema = `{
	"type": "object",
	"properties": {"email": {"type": "string"}},
	"required": ["email"]
}`

func customAction(payload string) []byte {
	return []byte(`{"type":"threads.custom_action","params":{"thread_id":"thr_1","item_id":null,"action":{"type":"submit","payload":` + payload + `}}}`)
}

func TestCustomActionSchema(t *testing.T) {
	r, m := newRegistry(t, config.ActionsConfig{Schemas: map[string]string{"submit": submitSchema}})

	req, err := r.ParseRequest(customAction(`{"email":"a@example.com"}`))
	require.NoError(t, err)
	assert.Equal(t, domain.ReqThreadsCustomAction, req.RequestType())

	_, err = r.ParseRequest(customAction(`{"name":"no email"}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrActionSchema)
	assert.Equal(t, domain.CodeActionSchema, domain.ErrorCodeOf(err))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ValidationFailures.WithLabelValues("request")))
}

func TestActionSchemasUnknownType(t *testing.T) {
	lenient, err := NewActionSchemas(config.ActionsConfig{Schemas: map[string]string{"submit": submitSchema}})
	require.NoError(t, err)
	assert.NoError(t, lenient.Validate(domain.Action{Type: "vote", Payload: json.RawMessage(`1`)}))

	strict, err := NewActionSchemas(config.ActionsConfig{
		Schemas:       map[string]string{"submit": submitSchema},
		RejectUnknown: true,
	})
	require.NoError(t, err)
	err = strict.Validate(domain.Action{Type: "vote"})
	assert.ErrorIs(t, err, domain.ErrActionSchema)
	assert.Equal(t, []string{"submit"}, strict.Types())
}

func TestActionSchemasCompileError(t *testing.T) {
	_, err := NewActionSchemas(config.ActionsConfig{Schemas: map[string]string{"bad": `{"type":`}})
	assert.Error(t, err)
}

func TestRegistryWithoutActions(t *testing.T) {
	r := New(nil, nil, nil)
	_, err := r.ParseRequest(customAction(`"anything"`))
	assert.NoError(t, err)

	_, err = r.ParseRequest([]byte(`{"type":"threads.list","params":{"limit":"ten"}}`))
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "params.limit", ve.Fields[0].Path)
}
