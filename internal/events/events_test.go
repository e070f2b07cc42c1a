package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-fund-dao/internal/logging"
)

type fakeConn struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	if c.err != nil {
		return c.err
	}
	c.subjects = append(c.subjects, subject)
	c.payloads = append(c.payloads, data)
	return nil
}

type failingPublisher struct{ err error }

func (f failingPublisher) Publish(context.Context, Event) error { return f.err }

func TestNew_AssignsUniqueIDs(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := New(KindDeposited, "fund1", at)
	b := New(KindDeposited, "fund1", at)

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, KindDeposited, a.Kind)
	assert.Equal(t, "fund1", a.FundID)
	assert.True(t, a.OccurredAt.Equal(at))
}

func TestMulti_DeliversToAllAndJoinsErrors(t *testing.T) {
	rec := &Recorder{}
	boom := errors.New("sink down")
	m := Multi{failingPublisher{err: boom}, rec}

	err := m.Publish(context.Background(), New(KindFundCreated, "fund1", time.Now()))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []Kind{KindFundCreated}, rec.Kinds())
}

func TestNoop(t *testing.T) {
	assert.NoError(t, Noop{}.Publish(context.Background(), Event{}))
}

func TestNATSPublisher_SubjectAndPayload(t *testing.T) {
	conn := &fakeConn{}
	p := newNATSPublisher(conn, "")

	e := New(KindProposalExecuted, "fund1", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	e.ProposalID = "prop1"
	e.Amount = 80
	e.State = "EXECUTED"

	require.NoError(t, p.Publish(context.Background(), e))
	require.Len(t, conn.subjects, 1)
	assert.Equal(t, "dao.proposal.executed", conn.subjects[0])

	var decoded Event
	require.NoError(t, json.Unmarshal(conn.payloads[0], &decoded))
	assert.Equal(t, e.ID, decoded.ID)
	assert.Equal(t, "prop1", decoded.ProposalID)
	assert.Equal(t, uint64(80), decoded.Amount)
}

func TestNATSPublisher_CustomPrefixAndErrors(t *testing.T) {
	conn := &fakeConn{err: errors.New("disconnected")}
	p := newNATSPublisher(conn, "staging")
	assert.Equal(t, "staging.fund.withdrawn", p.Subject(KindWithdrawn))

	err := p.Publish(context.Background(), New(KindWithdrawn, "fund1", time.Now()))
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = p.Publish(ctx, New(KindWithdrawn, "fund1", time.Now()))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEmitter_SwallowsAndReportsErrors(t *testing.T) {
	var failed []Kind
	rec := &Recorder{}
	em := NewEmitter(Multi{rec, failingPublisher{err: errors.New("down")}}, logging.Quiet(), func(k Kind) {
		failed = append(failed, k)
	})

	em.Emit(context.Background(),
		New(KindDeposited, "fund1", time.Now()),
		New(KindWithdrawn, "fund1", time.Now()),
	)

	assert.Equal(t, []Kind{KindDeposited, KindWithdrawn}, rec.Kinds())
	assert.Equal(t, []Kind{KindDeposited, KindWithdrawn}, failed)
}

func TestEmitter_NilSafe(t *testing.T) {
	var em *Emitter
	assert.NotPanics(t, func() { em.Emit(context.Background(), Event{}) })
	assert.NotPanics(t, func() { NewEmitter(nil, nil, nil).Emit(context.Background(), Event{}) })
}
