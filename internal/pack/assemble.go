package pack

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/multierr"

	"github.com/Faultbox/vrmpack/pkg/glb"
	"github.com/Faultbox/vrmpack/pkg/scene"
)

// Assemble frames the scene as a binary container: buffer 0 becomes the BIN
// chunk and any further buffers are embedded in the JSON as data URIs.
func Assemble(s *scene.Scene) ([]byte, error) {
	s.PrepareContainer()

	jsonData, err := s.MarshalJSON()
	if err != nil {
		return nil, err
	}
	bin := s.BinaryChunk()

	data, err := glb.Encode(jsonData, bin)
	if err != nil {
		return nil, fmt.Errorf("assembling container: %w", err)
	}

	want := glb.Size(len(jsonData), len(bin), bin != nil)
	if len(data) != want || binary.LittleEndian.Uint32(data[8:12]) != uint32(want) {
		return nil, fmt.Errorf("%w: container is %d bytes, header declares %d, expected %d",
			ErrLayoutInvariant, len(data), binary.LittleEndian.Uint32(data[8:12]), want)
	}
	return data, nil
}

// WriteContainer writes data to path through a temporary file in the same
// directory, so a failed run never leaves a partial output behind.
func WriteContainer(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".vrmpack-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, os.Remove(tmp.Name()))
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return multierr.Append(err, tmp.Close())
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp.Name(), 0644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
