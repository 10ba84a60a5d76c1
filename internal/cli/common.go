package cli

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"volquilt/pkg/config"
)

// loadConfig loads the file named by --config, or the defaults if it does
// not exist.
func loadConfig() (*config.Config, error) {
	return config.LoadConfig(configPath)
}

// parseShape parses an array shape such as "1,1,64,64" or "1x1x64x64". The
// shape needs batch, channel and at least one spatial axis.
func parseShape(s string) ([]int, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == 'x' || r == ' '
	})
	if len(fields) < 3 {
		return nil, errors.Errorf("shape %q needs batch, channel and at least one spatial axis", s)
	}
	shape := make([]int, len(fields))
	for i, f := range fields {
		d, err := strconv.Atoi(f)
		if err != nil {
			return nil, errors.Wrapf(err, "shape %q", s)
		}
		if d <= 0 {
			return nil, errors.Errorf("shape %q: dimension %d must be positive", s, d)
		}
		shape[i] = d
	}
	return shape, nil
}
