package flow

import (
	"testing"

	"github.com/aretw0/chanflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(domain.ProtocolMessage, *Context) error { return nil }

func TestValidate(t *testing.T) {
	valid := Flow{
		0: {Do("propose", noop), Op(domain.OpSign), Op(domain.OpSendAndWait), Op(domain.OpPersist)},
		1: {Do("propose", noop), Op(domain.OpSign), Op(domain.OpSend), Op(domain.OpPersist)},
	}

	tests := []struct {
		name    string
		flow    Flow
		wantErr bool
	}{
		{name: "Valid", flow: valid},
		{name: "Empty", flow: Flow{}, wantErr: true},
		{name: "Gap In Roles", flow: Flow{0: valid[0], 2: valid[1]}, wantErr: true},
		{name: "Empty Role", flow: Flow{0: {}}, wantErr: true},
		{name: "No Persist", flow: Flow{0: {Do("propose", noop), Op(domain.OpSend)}}, wantErr: true},
		{
			name:    "Two Waits",
			flow:    Flow{0: {Op(domain.OpSendAndWait), Op(domain.OpSendAndWait), Op(domain.OpPersist)}},
			wantErr: true,
		},
		{
			name:    "Ambiguous Step",
			flow:    Flow{0: {{Name: "both", Transform: noop, Op: domain.OpSign}, Op(domain.OpPersist)}},
			wantErr: true,
		},
		{
			name:    "Blank Step",
			flow:    Flow{0: {{Name: "blank"}, Op(domain.OpPersist)}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate("test", tt.flow)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidFlow)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewContext_StagesCopy(t *testing.T) {
	ch, err := domain.NewStateChannel(
		"0x00000000000000000000000000000000000000bb",
		"0x00000000000000000000000000000000000000ff",
		[]domain.Address{"0xa000000000000000000000000000000000000001", "0xb000000000000000000000000000000000000002"},
	)
	require.NoError(t, err)
	channels := domain.ChannelMap{}
	channels.Set(ch)

	c := NewContext("run", domain.ProtocolSetup, 0, domain.NetworkContext{}, channels)
	delete(c.Channels, ch.MultisigAddress.Canonical())

	assert.Len(t, channels, 1)

	_, ok := c.LatestCommitment()
	assert.False(t, ok)
	_, ok = c.LatestOutbound()
	assert.False(t, ok)

	empty := NewContext("run", domain.ProtocolSetup, 0, domain.NetworkContext{}, nil)
	assert.NotNil(t, empty.Channels)
}
