package boolean

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chazu/mortise/pkg/kernel"
)

// dump writes the meshes of shapes as <id>-<role>-<n>.json into the
// debug directory. Kernels that cannot tessellate are skipped.
func (e *Engine) dump(id, role string, shapes []kernel.Shape) {
	if e.cfg.DebugDir == "" {
		return
	}
	t, ok := e.k.(kernel.Tessellator)
	if !ok {
		return
	}
	for i, s := range shapes {
		name := filepath.Join(e.cfg.DebugDir, fmt.Sprintf("%s-%s-%d.json", id, role, i))
		if err := writeMesh(t, s, name); err != nil {
			e.log.Debugf("Failed to write %s: %v", name, err)
		}
	}
}

func writeMesh(t kernel.Tessellator, s kernel.Shape, name string) error {
	m, err := kernel.Call("mesh", func() (*kernel.Mesh, error) {
		return t.ToMesh(s)
	})
	if err != nil {
		return err
	}
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(name, data, 0o644)
}
