package mesh

import (
	"io"
	"io/fs"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/g3n/engine/loader/obj"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/vkngwrapper/tutorial-engine/gpu"
)

// LoadOBJ decodes a Wavefront model from fsys. mtlPath may be empty.
// Polygons are fanned into triangles and vertices sharing a position index
// are emitted once.
func LoadOBJ(fsys fs.FS, objPath, mtlPath string) (*Mesh, error) {
	meshFile, err := fsys.Open(objPath)
	if err != nil {
		return nil, errors.Wrapf(err, "open model %s", objPath)
	}
	defer meshFile.Close()

	// the decoder always reads a material stream; an empty one yields its
	// default material
	var matReader io.Reader = strings.NewReader("")
	if mtlPath != "" {
		matFile, err := fsys.Open(mtlPath)
		if err != nil {
			return nil, errors.Wrapf(err, "open materials %s", mtlPath)
		}
		defer matFile.Close()
		matReader = matFile
	}

	decoder, err := obj.DecodeReader(meshFile, matReader)
	if err != nil {
		return nil, errors.Wrapf(err, "decode model %s", objPath)
	}

	m := &Mesh{Name: objPath, Topology: gpu.TopologyTriangleList}
	unique := make(map[int]uint32)
	addVertex := func(face obj.Face, corner int) {
		vertInd := face.Vertices[corner]
		index, ok := unique[vertInd]
		if !ok {
			vert := Vertex{
				Position: mgl32.Vec3{
					decoder.Vertices[vertInd*3],
					decoder.Vertices[vertInd*3+1],
					decoder.Vertices[vertInd*3+2],
				},
				Color: mgl32.Vec3{1, 1, 1},
			}
			if corner < len(face.Uvs) {
				uvInd := face.Uvs[corner]
				vert.UV = mgl32.Vec2{
					decoder.Uvs[uvInd*2],
					1.0 - decoder.Uvs[uvInd*2+1],
				}
			}
			index = uint32(len(m.Vertices))
			m.Vertices = append(m.Vertices, vert)
			unique[vertInd] = index
		}
		m.Indices = append(m.Indices, index)
	}

	for _, decodedObj := range decoder.Objects {
		for _, face := range decodedObj.Faces {
			for i := 2; i < len(face.Vertices); i++ {
				addVertex(face, 0)
				addVertex(face, i-1)
				addVertex(face, i)
			}
		}
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}
