package config

import "os"

// ExpandEnv expands ${VAR} / $VAR references in YAML content before
// parsing, the same shell-style expansion the teacher applies to its
// own YAML files. Missing variables expand to empty string; validation
// catches required fields left empty by that.
func ExpandEnv(data []byte) []byte {
	return []byte(os.ExpandEnv(string(data)))
}
