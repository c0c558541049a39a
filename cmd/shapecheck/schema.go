package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ggoodman/optshape/internal/docfile"
	"github.com/ggoodman/optshape/shape"
)

var schemaFlags struct {
	shape     string
	canonical bool
}

var schemaCmd = &cobra.Command{
	Use:   "schema --shape FILE",
	Short: "Print a descriptor as JSON Schema with its fingerprint",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, err := docfile.LoadShape(schemaFlags.shape)
		if err != nil {
			return err
		}
		fp, err := shape.Fingerprint(s)
		if err != nil {
			return err
		}
		b, err := render(s, schemaFlags.canonical)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, string(b))
		fmt.Fprintln(out, "fingerprint:", fp)
		return nil
	},
}

func init() {
	schemaCmd.Flags().StringVar(&schemaFlags.shape, "shape", "", "descriptor file")
	schemaCmd.Flags().BoolVar(&schemaFlags.canonical, "canonical", false, "print the canonical encoding instead of JSON Schema")
	_ = schemaCmd.MarkFlagRequired("shape")
}

func render(s shape.Shape, canonical bool) ([]byte, error) {
	if canonical {
		return shape.Marshal(s)
	}
	js, err := shape.ToJSONSchema(s)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(js, "", "  ")
}
