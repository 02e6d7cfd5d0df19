package template

import (
	"regexp"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessStaticString(t *testing.T) {
	vp := NewVariableProcessor()
	assert.Equal(t, "board0", vp.Process("board0", nil))
	assert.Equal(t, "{single}", vp.Process("{single}", nil))
}

func TestProcessSessionWinsOverGenerators(t *testing.T) {
	vp := NewVariableProcessor()
	session := map[string]string{"uuid": "fixed", "host": "10.0.0.1"}
	assert.Equal(t, "fixed", vp.Process("{{uuid}}", session))
	assert.Equal(t, "worker-10.0.0.1", vp.Process("worker-{{host}}", session))
}

func TestProcessDeviceSession(t *testing.T) {
	vp := NewVariableProcessor()
	session := DeviceSession("10.0.0.7", 4028, 3)
	assert.Equal(t, "10.0.0.7:4028#3", vp.Process("{{host}}:{{port}}#{{index}}", session))
}

func TestProcessUUID(t *testing.T) {
	vp := NewVariableProcessor()
	got := vp.Process("{{uuid}}", nil)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f-]{36}$`), got)
	// every expansion is fresh
	assert.NotEqual(t, got, vp.Process("{{uuid}}", nil))
}

func TestProcessFunctions(t *testing.T) {
	vp := NewVariableProcessor()

	got := vp.Process("{{random_int_range(10, 20)}}", nil)
	n, err := strconv.Atoi(got)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 10)
	assert.Less(t, n, 20)

	got = vp.Process("{{random_choice(a, b, c)}}", nil)
	assert.Contains(t, []string{"a", "b", "c"}, got)

	got = vp.Process("{{regex_gen([0-9]{4})}}", nil)
	assert.Regexp(t, regexp.MustCompile(`^[0-9]{4}$`), got)

	got = vp.Process("{{random_string(8)}}", nil)
	assert.Len(t, got, 8)
}

func TestProcessUnknownKeptLiteral(t *testing.T) {
	vp := NewVariableProcessor()
	assert.Equal(t, "{{no_such_var}}", vp.Process("{{no_such_var}}", nil))
	assert.Equal(t, "{{no_such_func(1)}}", vp.Process("{{no_such_func(1)}}", nil))
}

func TestCompileOnceExecuteMany(t *testing.T) {
	ct := Compile("worker-{{host}}")
	require.True(t, ct.HasVars())

	vp := NewVariableProcessor()
	assert.Equal(t, "worker-a", ct.Execute(vp, map[string]string{"host": "a"}))
	assert.Equal(t, "worker-b", ct.Execute(vp, map[string]string{"host": "b"}))

	static := Compile("plain")
	assert.False(t, static.HasVars())
	assert.Equal(t, "plain", static.Execute(vp, nil))
}

func TestCompileUnterminatedPlaceholder(t *testing.T) {
	vp := NewVariableProcessor()
	assert.Equal(t, "abc{{oops", Compile("abc{{oops").Execute(vp, nil))
}
