// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package compactor

import (
	"fmt"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

const parquetRowGroupFlushSize = 128 * 1024 * 1024

// rowWriter wraps a parquet-go writer bound to a local staging file. Rows
// are appended incrementally per input object (§4.6 "row-group flush per
// input object boundary") and the file is only finalized by Close.
type rowWriter struct {
	file *local.LocalFile
	pw   *writer.ParquetWriter
	rows int64
}

// newRowWriter creates path and opens a Parquet writer over it using
// schema (a pointer to one of the three row structs) as the row template.
func newRowWriter(path string, schema interface{}) (*rowWriter, error) {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return nil, fmt.Errorf("open staging file %q: %w", path, err)
	}
	pw, err := writer.NewParquetWriter(fw, schema, 4)
	if err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("create parquet writer for %q: %w", path, err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	pw.RowGroupSize = parquetRowGroupFlushSize
	return &rowWriter{file: fw, pw: pw}, nil
}

// WriteBatch appends one input object's rows, then flushes a row group —
// bounding memory to one input file's worth of rows at a time.
func (w *rowWriter) WriteBatch(rows []interface{}) error {
	for _, row := range rows {
		if err := w.pw.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
		w.rows++
	}
	return w.pw.Flush(true)
}

// Close finalizes the Parquet footer and closes the underlying file. It
// must be called exactly once, after every batch has been written.
func (w *rowWriter) Close() error {
	if err := w.pw.WriteStop(); err != nil {
		_ = w.file.Close()
		return fmt.Errorf("finalize parquet footer: %w", err)
	}
	return w.file.Close()
}
