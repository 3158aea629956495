package narrative

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"
)

const (
	// TestVMID is the identifier placed in every request descriptor.
	TestVMID = "debug-test-vm-001"

	// TestVMName mirrors TestVMID; the OMA API accepts both fields.
	TestVMName = "debug-test-vm-001"

	// JobIDPrefix precedes the Unix seconds in FailoverJobID.
	JobIDPrefix = "debug-test-"

	header      = "=== DEBUGGING VM CREATION AND ROOT VOLUME TIMING ==="
	createLine  = "1. Creating test VM with request: "
	monitorLine = "2. Monitoring VM creation timing..."
	scenario    = "RACE CONDITION SCENARIO:"
)

var steps = []string{
	"  Step 1: VM creation submitted to CloudStack",
	"  Step 2: CloudStack returns job ID immediately",
	"  Step 3: WaitForAsyncJob waits for job completion",
	"  Step 4: waitForVMFullyProvisioned waits for root volume",
	"  Step 5: VM operations proceed...",
}

var warning = []string{
	"ISSUE: If Step 4 times out or fails to detect root volume,",
	"       the subsequent root volume deletion will fail!",
}

// Request is the descriptor a real failover would send to create the test VM.
// Field order is the display order.
type Request struct {
	VMID          string `json:"vm_id"`
	VMName        string `json:"vm_name"`
	FailoverJobID string `json:"failover_job_id"`
}

// Result describes one completed pass of the printer.
type Result struct {
	Request    Request
	Lines      int
	Transcript []byte
	OK         bool
}

// NewRequest builds the descriptor for a run started at now.
func NewRequest(now time.Time) Request {
	return Request{
		VMID:          TestVMID,
		VMName:        TestVMName,
		FailoverJobID: JobIDPrefix + strconv.FormatInt(now.Unix(), 10),
	}
}

// JobUnix extracts the seconds value from a failover job id.
func JobUnix(jobID string) (int64, error) {
	if len(jobID) <= len(JobIDPrefix) || jobID[:len(JobIDPrefix)] != JobIDPrefix {
		return 0, fmt.Errorf("job id %q does not start with %q", jobID, JobIDPrefix)
	}
	secs, err := strconv.ParseInt(jobID[len(JobIDPrefix):], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("job id %q: %w", jobID, err)
	}
	return secs, nil
}

// Steps returns the five scenario lines in order.
func Steps() []string {
	return append([]string(nil), steps...)
}

// Warning returns the closing warning lines.
func Warning() []string {
	return append([]string(nil), warning...)
}

// Write prints the narrative for req to w and returns the number of lines
// written. The only possible error comes from w.
func Write(w io.Writer, req Request) (int, error) {
	body, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("encode request: %w", err)
	}

	lines := []string{header, createLine + string(body), monitorLine, scenario}
	lines = append(lines, steps...)
	lines = append(lines, "")
	lines = append(lines, warning...)

	written := 0
	for _, line := range lines {
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			return written, fmt.Errorf("write narrative: %w", err)
		}
		written += bytes.Count([]byte(line), []byte("\n")) + 1
	}
	return written, nil
}

// Run builds a request for now and prints it to w. The transcript in the
// result is exactly what was written.
func Run(w io.Writer, now time.Time) (Result, error) {
	req := NewRequest(now)

	var buf bytes.Buffer
	n, err := Write(io.MultiWriter(w, &buf), req)
	if err != nil {
		return Result{Request: req, Lines: n}, err
	}

	return Result{
		Request:    req,
		Lines:      n,
		Transcript: buf.Bytes(),
		OK:         true,
	}, nil
}
