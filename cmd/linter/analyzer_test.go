package main

import (
	"testing"

	"golang.org/x/tools/go/analysis/analysistest"
)

func TestBoundedIOAnalyzer(t *testing.T) {
	analysistest.Run(t, analysistest.TestData(), Analyzer, "boundedio")
}
