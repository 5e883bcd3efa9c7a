package pack

import (
	"context"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/Faultbox/vrmpack/internal/config"
	"github.com/Faultbox/vrmpack/internal/logger"
	"github.com/Faultbox/vrmpack/pkg/scene"
)

// Report describes a finished Run.
type Report struct {
	Input    string
	Output   string
	Before   Stats
	After    Stats
	Records  []*MeshRecord
	Repack   *RepackStats
	Warnings []string
	Bytes    int // size of the written container
}

// Run reads input, reduces its meshes according to st and writes the
// resulting container to output. The container is only written once every
// stage has succeeded.
func Run(ctx context.Context, input, output string, st config.Settings, simp Simplifier) (*Report, error) {
	log := logger.Named("pack")
	report := &Report{Input: input, Output: output}

	s, err := scene.Open(input)
	if err != nil {
		return nil, err
	}

	if st.Validate {
		report.Warnings = scene.Validate(s.Doc)
		for _, w := range report.Warnings {
			log.Warn("validation", zap.String("warning", w))
		}
	}

	report.Before = Collect(s.Doc)
	if st.Verbose > 0 {
		log.Info("input", append([]zap.Field{zap.String("path", input)}, report.Before.Fields()...)...)
	}
	if st.DumpJSON {
		if err := dump(s, output, "pre"); err != nil {
			return nil, err
		}
	}

	records, err := Extract(s.Doc)
	if err != nil {
		return nil, err
	}
	report.Records = records

	if err := ReduceAll(ctx, records, st, simp); err != nil {
		return nil, err
	}
	if st.Verbose > 1 {
		for _, rec := range records {
			log.Info("mesh",
				zap.Stringer("record", rec),
				zap.Int("vertices", rec.VertexCount),
				zap.Int("indicesBefore", rec.OriginalIndexCount),
				zap.Int("indicesAfter", len(rec.Indices)),
				zap.Stringer("pass", rec.Pass),
				zap.Bool("skinned", rec.Skin != nil))
		}
	}

	report.Repack, err = Repack(s.Doc, records)
	if err != nil {
		return nil, err
	}
	if st.Verbose > 1 {
		for _, m := range report.Repack.Moves {
			log.Info("view",
				zap.Int("buffer", m.Buffer),
				zap.Int("view", m.View),
				zap.Int("from", m.OldOffset),
				zap.Int("to", m.NewOffset),
				zap.Int("length", m.Length))
		}
		for _, v := range report.Repack.Unshrunk {
			log.Info("view kept at full length", zap.Int("view", v))
		}
	}

	data, err := Assemble(s)
	if err != nil {
		return nil, err
	}

	report.After = Collect(s.Doc)
	if st.Verbose > 0 {
		log.Info("output", append([]zap.Field{zap.String("path", output)}, report.After.Fields()...)...)
	}
	if st.DumpJSON {
		if err := dump(s, output, "post"); err != nil {
			return nil, err
		}
	}

	if err := WriteContainer(output, data); err != nil {
		return nil, err
	}
	report.Bytes = len(data)

	log.Info("packed",
		zap.String("output", output),
		zap.Int("trianglesBefore", report.Before.Triangles),
		zap.Int("trianglesAfter", report.After.Triangles),
		zap.Int("bytes", report.Bytes))
	return report, nil
}

// DumpPath returns the diagnostic JSON path for output, e.g.
// avatar.pre.json for avatar.vrm.
func DumpPath(output, stage string) string {
	base := strings.TrimSuffix(output, filepath.Ext(output))
	return base + "." + stage + ".json"
}

func dump(s *scene.Scene, output, stage string) error {
	path := DumpPath(output, stage)
	logger.Debug("writing scene dump", zap.String("path", path))
	return s.Serialize(path)
}
