package engine

import (
	"io"
	"log/slog"
	"testing"
	"testing/fstest"

	"github.com/shaiso/Pipewright/internal/catalog"
)

// fixtureHCL — небольшая библиотека для граничных случаев связывания.
const fixtureHCL = `
template "reads" {
  input "reads" {
    shape = "pair"
  }
  output "reads" {
    shape = "pair"
  }
  body = "process reads_{{ .Pid }} { from {{ .Inputs.reads }} into {{ .Outputs.reads }} }"
}

template "pairs_to_files" {
  input "reads" {
    shape = "pair"
  }
  output "files" {
    shape = "file"
  }
  body = "process p2f_{{ .Pid }} { from {{ .Inputs.reads }} into {{ .Outputs.files }} }"
}

template "needs_files" {
  input "files" {
    shape = "file"
  }
  output "report" {
    shape    = "file"
    terminal = true
  }
  body = "process needs_files_{{ .Pid }} { from {{ .Inputs.files }} into {{ .Outputs.report }} }"
}

template "join" {
  input "reads" {
    shape = "pair"
  }
  input "files" {
    shape = "file"
  }
  output "joined" {
    shape    = "file"
    terminal = true
  }
  body = "process join_{{ .Pid }} { {{ .Inputs.reads }} {{ .Inputs.files }} -> {{ .Outputs.joined }} }"
}

template "typed" {
  input "reads" {
    shape = "pair"
  }
  input "db" {
    shape    = "file"
    external = true
  }
  output "calls" {
    shape    = "file"
    terminal = true
  }
  param "min_score" {}
  param "mode" {
    default = "fast"
  }
  param "refs" {
    path = true
  }
  body = "process typed_{{ .Pid }} { {{ .Inputs.reads }} {{ .Inputs.db }} {{ .Params.min_score }} {{ .Params.mode }} {{ .Params.refs }} }"
}

template "with_status" {
  includes = ["status", "missing_fragment"]
  input "reads" {
    shape = "pair"
  }
  output "out" {
    shape    = "file"
    terminal = true
  }
  body = <<-EOT
    process with_status_{{ .Pid }} {
    {{ include "status" }}{{ include "missing_fragment" }}
    }
  EOT
}

template "dangling" {
  input "reads" {
    shape = "pair"
  }
  output "leftover" {
    shape = "file"
  }
  body = "process dangling_{{ .Pid }} { {{ .Inputs.reads }} }"
}

template "sink" {
  input "reads" {
    shape = "pair"
  }
  body = "process sink_{{ .Pid }} { from {{ .Inputs.reads }} }"
}

template "qc" {
  depends = ["reads"]
  input "reads" {
    shape = "pair"
  }
  output "reads" {
    shape = "pair"
  }
  body = "process qc_{{ .Pid }} { from {{ .Inputs.reads }} into {{ .Outputs.reads }} }"
}

template "summary" {
  depends = ["qc"]
  input "reads" {
    shape = "pair"
  }
  body = "process summary_{{ .Pid }} { from {{ .Inputs.reads }} }"
}

fragment "status" {
  body = "afterScript 'report {{ .Pid }}'"
}
`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixtureStore возвращает Store поверх fixtureHCL.
func fixtureStore(t *testing.T) *catalog.Store {
	t.Helper()
	fsys := fstest.MapFS{
		"fixture.hcl": &fstest.MapFile{Data: []byte(fixtureHCL)},
	}
	return catalog.NewStore(catalog.NewFSSource(fsys), discardLogger())
}

// builtinStore возвращает Store со встроенной библиотекой.
func builtinStore() *catalog.Store {
	return catalog.NewStore(catalog.Builtin(), discardLogger())
}

// existing возвращает ResourceChecker, для которого существуют только paths.
func existing(paths ...string) ResourceChecker {
	set := make(map[string]bool, len(paths))
	for _, p := range paths {
		set[p] = true
	}
	return ResourceFunc(func(path string) (bool, error) {
		return set[path], nil
	})
}
