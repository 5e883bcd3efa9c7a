// vrminfo is a CLI utility for inspecting VRM, GLB and glTF files.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/Faultbox/vrmpack/internal/pack"
	"github.com/Faultbox/vrmpack/pkg/scene"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "info":
		cmdInfo(args)
	case "validate", "check":
		cmdValidate(args)
	case "layout":
		cmdLayout(args)
	case "dump":
		cmdDump(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`vrminfo - VRM/GLB inspection utility

Usage:
  vrminfo <command> [options]

Commands:
  info <file>                Show scene statistics and mesh records
  validate <file>            Report structural warnings
  layout [-b N] <file>       Show buffer view layout (all buffers or buffer N)
  dump <file> [output.json]  Write the scene description as indented JSON

Examples:
  vrminfo info avatar.vrm
  vrminfo validate avatar.glb
  vrminfo layout -b 0 avatar.vrm
  vrminfo dump avatar.vrm avatar.json`)
}

func open(path string) *scene.Scene {
	s, err := scene.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return s
}

func cmdInfo(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: vrminfo info <file>")
		os.Exit(1)
	}

	s := open(args[0])
	st := pack.Collect(s.Doc)
	p := message.NewPrinter(language.English)

	p.Printf("File:         %s\n", args[0])
	p.Printf("Generator:    %s\n", s.Doc.Asset.Generator)
	p.Printf("Meshes:       %d (%d primitives)\n", st.Meshes, st.Primitives)
	p.Printf("Triangles:    %d\n", st.Triangles)
	p.Printf("Vertices:     %d\n", st.Vertices)
	p.Printf("Nodes:        %d\n", st.Nodes)
	p.Printf("Skins:        %d\n", st.Skins)
	p.Printf("Materials:    %d\n", st.Materials)
	p.Printf("Images:       %d\n", st.Images)
	p.Printf("Buffers:      %d (%d bytes)\n", st.Buffers, st.BufferBytes)
	p.Printf("Buffer views: %d\n", st.BufferViews)
	p.Printf("Accessors:    %d\n", st.Accessors)
	if len(s.Doc.ExtensionsUsed) > 0 {
		p.Printf("Extensions:   %v\n", s.Doc.ExtensionsUsed)
	}

	images, err := scene.EmbeddedImages(s.Doc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "\nImages unavailable: %v\n", err)
	} else if len(images) > 0 {
		fmt.Println()
		fmt.Println("Embedded images:")
		for _, img := range images {
			p.Printf("  %-4d %-24s %-5s %5dx%-5d %d bytes\n",
				img.Index, img.Name, img.Format, img.Width, img.Height, img.Bytes)
		}
	}

	records, err := pack.Extract(s.Doc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "\nMesh records unavailable: %v\n", err)
		return
	}

	fmt.Println()
	fmt.Println("Mesh records:")
	for _, rec := range records {
		skin := "-"
		if rec.Skin != nil {
			skin = fmt.Sprint(*rec.Skin)
		}
		note := ""
		if !rec.Reducible {
			note = "  (" + rec.Reason + ")"
		}
		p.Printf("  %-32s tris %-7d verts %-7d skin %-3s%s\n",
			rec.String(), len(rec.Indices)/3, rec.VertexCount, skin, note)
	}
}

func cmdValidate(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: vrminfo validate <file>")
		os.Exit(1)
	}

	s := open(args[0])
	warnings := scene.Validate(s.Doc)
	if _, err := pack.Extract(s.Doc); err != nil {
		warnings = append(warnings, err.Error())
	}

	if len(warnings) == 0 {
		fmt.Println("OK")
		return
	}
	for _, w := range warnings {
		fmt.Println(w)
	}
	fmt.Fprintf(os.Stderr, "\n(%d warnings)\n", len(warnings))
	os.Exit(1)
}

func cmdLayout(args []string) {
	fs := flag.NewFlagSet("layout", flag.ExitOnError)
	only := fs.Int("b", -1, "Only show buffer N")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: vrminfo layout [-b N] <file>")
		os.Exit(1)
	}

	s := open(fs.Arg(0))
	refs := scene.ViewRefCounts(s.Doc)

	for b, buf := range s.Doc.Buffers {
		if *only >= 0 && b != *only {
			continue
		}

		fmt.Printf("Buffer %d: %d bytes\n", b, buf.ByteLength)
		fmt.Printf("  %-6s %-10s %-10s %-7s %s\n", "view", "offset", "length", "refs", "gap")

		end := 0
		for _, v := range pack.BufferViews(s.Doc, b) {
			bv := s.Doc.BufferViews[v]
			gap := ""
			if bv.ByteOffset > end {
				gap = fmt.Sprintf("+%d", bv.ByteOffset-end)
			}
			fmt.Printf("  %-6d %-10d %-10d %-7d %s\n", v, bv.ByteOffset, bv.ByteLength, refs[v], gap)
			end = max(end, bv.ByteOffset+bv.ByteLength)
		}

		if err := pack.CheckLayout(s.Doc, b); err != nil {
			fmt.Printf("  not compact: %v\n", err)
		} else {
			fmt.Println("  compact")
		}
		fmt.Println()
	}
}

func cmdDump(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: vrminfo dump <file> [output.json]")
		os.Exit(1)
	}

	s := open(args[0])

	if len(args) > 1 {
		if err := s.Serialize(args[1]); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", args[1], err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Wrote: %s\n", args[1])
		return
	}

	data, err := s.MarshalJSON()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	pretty.WriteByte('\n')
	os.Stdout.Write(pretty.Bytes())
}
