// Package catalog — Template Store: загрузка и индексация шаблонов процессов.
//
// Шаблон описывается в HCL:
//
//	template "mentalist" {
//	  includes = ["status"]
//	  input "fastq_pair" { shape = "pair" }
//	  input "kmer_db" {
//	    shape    = "file"
//	    external = true
//	  }
//	  output "mentalist_json" { terminal = true }
//	  param "cpus" { default = 4 }
//	  body = <<-EOT
//	    process mentalist_{{ .Pid }} { ... }
//	  EOT
//	}
//
//	fragment "status" { body = "..." }
//
// Тело — Go text/template. При загрузке тело разбирается, и все ссылки
// .Params.x, .Inputs.x, .Outputs.x и include "x" сверяются с объявлениями;
// расхождение — ErrMalformedTemplate.
//
// Store кэширует загруженные шаблоны и безопасен для параллельного чтения.
// Встроенная библиотека (Builtin) лежит в library/ и вшита в бинарник.
package catalog
