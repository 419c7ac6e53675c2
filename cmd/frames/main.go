package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/eyehal/eye/platform/replay"
	"github.com/eyehal/eye/record"
)

var _ = fmt.Print

type frame_info struct {
	Number int           `json:"number"`
	Delay  time.Duration `json:"delay"`
	File   string        `json:"file"`
}

type metadata struct {
	Width     int          `json:"width"`
	Height    int          `json:"height"`
	LoopCount uint         `json:"loop_count"`
	Frames    []frame_info `json:"frames"`
}

// Dumps every frame the virtual camera would show for a file, as PNG
// snapshots plus a JSON description of the sequence.
func main() {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}()
	if len(os.Args) == 1 || len(os.Args) > 3 {
		fmt.Fprintln(os.Stderr, "usage: go run ./cmd/frames input-file [output-prefix]")
		os.Exit(1)
	}
	seq, err := replay.Open(os.Args[1], 0)
	if err != nil {
		return
	}
	output_prefix := os.Args[1]
	if len(os.Args) == 3 {
		output_prefix = os.Args[2]
	}
	md := metadata{Width: seq.Width, Height: seq.Height, LoopCount: seq.LoopCount}
	for i, f := range seq.Frames {
		output_file := fmt.Sprintf("%s-%05d.png", output_prefix, i+1)
		out, cerr := os.OpenFile(output_file, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o666)
		if err = cerr; err != nil {
			return
		}
		err = record.EncodeImage(out, f.Image, record.PNG)
		if cerr = out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return
		}
		md.Frames = append(md.Frames, frame_info{Number: i + 1, Delay: f.Delay, File: output_file})
	}
	b, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return
	}
	if err = os.WriteFile(output_prefix+"-metadata.json", b, 0o666); err != nil {
		return
	}
	fmt.Printf("%d frames decoded to %s-*.[png|json]\n", len(md.Frames), output_prefix)
}
