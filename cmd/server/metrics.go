package main

import (
	"fmt"
	"io"

	"pixelcraft.ai/internal/persistence/indexdb"
	"pixelcraft.ai/internal/persistence/r2s3"
)

func gauge(w io.Writer, name, help string, v any) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s gauge\n", name)
	fmt.Fprintf(w, "%s %v\n", name, v)
}

func counter(w io.Writer, name, help string, v any) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s counter\n", name)
	fmt.Fprintf(w, "%s %v\n", name, v)
}

func writeIndexMetrics(w io.Writer, s indexdb.Stats) {
	gauge(w, "pixelcraft_index_queue_depth", "Current job index writer queue depth.", s.QueueDepth)
	gauge(w, "pixelcraft_index_queue_capacity", "Job index writer queue capacity.", s.QueueCapacity)
	counter(w, "pixelcraft_index_dropped_total", "Job rows dropped because the index writer fell behind.", s.DropJobTotal)
	counter(w, "pixelcraft_index_sent_total", "Index events accepted by the remote ingest endpoint.", s.SentTotal)
	counter(w, "pixelcraft_index_flush_fail_total", "Index batches the remote ingest endpoint rejected.", s.FlushFailTotal)
}

func writeMirrorMetrics(w io.Writer, s r2s3.Stats) {
	gauge(w, "pixelcraft_mirror_queue_depth", "Current mirror queue depth.", s.QueueDepth)
	gauge(w, "pixelcraft_mirror_queue_capacity", "Mirror queue capacity.", s.QueueCapacity)
	counter(w, "pixelcraft_mirror_enqueued_total", "Total mirror enqueue attempts.", s.EnqueuedTotal)
	counter(w, "pixelcraft_mirror_queue_saturated_total", "Enqueue attempts that found the queue full.", s.QueueSaturatedTotal)
	counter(w, "pixelcraft_mirror_dropped_total", "Files dropped because the queue stayed full.", s.DroppedTotal)
	counter(w, "pixelcraft_mirror_upload_success_total", "Successful uploads.", s.UploadSuccessTotal)
	counter(w, "pixelcraft_mirror_upload_fail_total", "Uploads that failed after retry.", s.UploadFailTotal)
	counter(w, "pixelcraft_mirror_uploaded_bytes_total", "Bytes uploaded.", s.UploadedBytesTotal)
	gauge(w, "pixelcraft_mirror_last_success_unix", "Unix time of the last successful upload.", s.LastSuccessUnix)
	gauge(w, "pixelcraft_mirror_last_error_unix", "Unix time of the last failed upload.", s.LastErrorUnix)
}
