package listener

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/maisonfine/stockd/internal/services/inventory"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		ok      bool
		wantErr bool
	}{
		{"fulfilled", `{"event_id":"e1","event_type":"OrderFulfilled","payload":{"order_id":12,"item_uids":["TRF-0123456789AB"]}}`, true, false},
		{"other type", `{"event_type":"OrderCreated","payload":{"order_id":12}}`, false, false},
		{"missing order", `{"event_type":"OrderFulfilled","payload":{"item_uids":["X"]}}`, false, true},
		{"malformed", `{"event_type":`, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, ok, err := Parse([]byte(tt.value))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, uint(12), cmd.OrderID)
				assert.Equal(t, []string{"TRF-0123456789AB"}, cmd.ItemUIDs)
				assert.Nil(t, cmd.ActorID)
			}
		})
	}
}

type sliceReader struct {
	msgs   [][]byte
	cancel context.CancelFunc
	closed bool
}

func (r *sliceReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		r.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	v := r.msgs[0]
	r.msgs = r.msgs[1:]
	return kafka.Message{Value: v}, nil
}

func (r *sliceReader) Close() error {
	r.closed = true
	return nil
}

type recordingSeller struct {
	cmds []inventory.SoldCommand
	err  error
}

func (s *recordingSeller) MarkItemsSold(_ context.Context, cmd inventory.SoldCommand) (inventory.SoldResult, error) {
	s.cmds = append(s.cmds, cmd)
	return inventory.SoldResult{Sold: cmd.ItemUIDs}, s.err
}

func TestFulfillment_Start(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &sliceReader{cancel: cancel, msgs: [][]byte{
		[]byte(`not json`),
		[]byte(`{"event_type":"OrderCreated","payload":{"order_id":1}}`),
		[]byte(`{"event_type":"OrderFulfilled","payload":{"order_id":2,"item_uids":["A"]}}`),
		[]byte(`{"event_type":"OrderFulfilled","payload":{"order_id":3,"item_uids":["B","C"]}}`),
	}}
	seller := &recordingSeller{err: errors.New("item not found")}

	NewFulfillment(reader, seller, zap.NewNop()).Start(ctx)

	require.Len(t, seller.cmds, 2)
	assert.Equal(t, uint(2), seller.cmds[0].OrderID)
	assert.Equal(t, []string{"B", "C"}, seller.cmds[1].ItemUIDs)
	assert.True(t, reader.closed)
}
