package languages

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForExtensionMatchesKnownAndUnknown(t *testing.T) {
	assert.Equal(t, "go", ForExtension(".go"))
	assert.Equal(t, "cpp", ForExtension(".hpp"))
	assert.Equal(t, "", ForExtension(".unknown"))
}

func TestForExtensionIsCaseInsensitive(t *testing.T) {
	assert.Equal(t, "python", ForExtension(".PY"))
}

func TestKnownReportsBootstrapMembership(t *testing.T) {
	assert.True(t, Known("rust"))
	assert.False(t, Known("cobol"))
}
