package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/jobdone/core/model"
)

func TestEnvelopeWireFormat(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	env := MustEncode(TypeEventAcked, EventAcked{EventID: "e1", Status: model.StatusAcked, AckedAt: at})
	b, err := env.Marshal()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"event_acked","payload":{"eventId":"e1","status":"acked","ackedAt":"2024-05-01T10:00:00Z"}}`, string(b))

	back, err := Unmarshal(b)
	require.NoError(t, err)
	var p EventAcked
	require.NoError(t, back.Decode(&p))
	assert.Equal(t, "e1", p.EventID)
	assert.True(t, p.AckedAt.Equal(at))
}

func TestEventCreatedUsesCamelCase(t *testing.T) {
	ev := model.DockEvent{ID: "e1", DockSetID: 1, DockNo: 35, Status: model.StatusSent, CreatedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	env := MustEncode(TypeEventCreated, EventCreated{Event: ev})
	assert.JSONEq(t, `{"event":{"id":"e1","dockSetId":1,"dockNo":35,"status":"sent","createdAt":"2024-05-01T10:00:00Z","ackedAt":null}}`, string(env.Payload))
}

func TestUnmarshalRejectsMissingType(t *testing.T) {
	_, err := Unmarshal([]byte(`{"payload":{}}`))
	assert.Error(t, err)
	_, err = Unmarshal([]byte(`not json`))
	assert.Error(t, err)
}

func TestDecodeEmptyPayload(t *testing.T) {
	var s Sync
	assert.Error(t, Envelope{Type: TypeSync}.Decode(&s))
}
