// Package pdf compresses and inspects PDF files on local disk.
//
// Two compressors are provided: Ghostscript, which shells out to the gs
// binary, and Optimizer, which runs pdfcpu's optimizer in process. Both
// write a new file and leave the input untouched.
package pdf
