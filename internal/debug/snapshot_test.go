package debug

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fluxr/internal/canonical"
	"github.com/roach88/fluxr/internal/diff"
)

func TestView_CanonicalForm(t *testing.T) {
	f := newFixture(t, WithMode(ModeDiff))
	f.run(t, func() error { return f.inc.Invoke() })
	f.run(t, func() error { return f.push.Invoke("a") })

	out, err := canonical.Marshal(f.history.View())
	require.NoError(t, err)

	assert.Equal(t,
		`{"currentState":1,"mode":"DIFF","stateCounter":2,"states":[`+
			`{"action":"inc","diff":[{"added":1,"path":"counter"}],"inactive":false,"key":1,"state":{"counter":1}},`+
			`{"action":"push","diff":[{"added":["a"],"path":"list"}],"inactive":false,"key":2,"payload":"a","state":{"counter":1,"list":["a"]}}`+
			`]}`,
		string(out))
}

func TestSnapshot_MarshalJSON_Empty(t *testing.T) {
	out, err := canonical.Marshal(Snapshot{Key: 3, Diff: []diff.Entry{}})
	require.NoError(t, err)
	assert.Equal(t, `{"action":"","inactive":false,"key":3,"state":{}}`, string(out))
}
