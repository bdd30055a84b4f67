package provider

import (
	"os"
	"os/exec"
	"path/filepath"
)

// cleanTmpDir is a dedicated temp directory for provider CLI
// invocations. Routing TMPDIR through a private directory avoids
// picking up editor socket files that some provider CLIs choke on when
// a custom --settings/--config flag is present.
var cleanTmpDir string

func init() {
	cleanTmpDir = filepath.Join(os.TempDir(), "takt-provider")
	os.MkdirAll(cleanTmpDir, 0755)
}

// SetCleanEnv configures cmd to use the clean TMPDIR described above,
// copying the rest of the current process environment through
// unchanged.
func SetCleanEnv(cmd *exec.Cmd, extra ...string) {
	cmd.Env = os.Environ()

	found := false
	for i, env := range cmd.Env {
		if len(env) > 7 && env[:7] == "TMPDIR=" {
			cmd.Env[i] = "TMPDIR=" + cleanTmpDir
			found = true
			break
		}
	}
	if !found {
		cmd.Env = append(cmd.Env, "TMPDIR="+cleanTmpDir)
	}
	cmd.Env = append(cmd.Env, extra...)
}
