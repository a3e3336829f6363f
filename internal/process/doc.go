// Package process supervises the external meter decoder.
//
// Reading the optical port or P1 interface of a meter and decoding DLMS/COSEM
// frames is left to a dedicated decoder program. When meterthing is configured
// with an exec source it starts that program itself, reads reading messages
// from its stdout and logs its stderr.
//
// The decoder is not restarted. Its exit ends the reading stream, which stops
// the sync loop; restarting the whole service is the job of the init system.
// Wait returns the exit status so it can be reported with that stop.
//
// Example usage:
//
//	mgr := process.NewManager(process.Config{
//	    Name:   "decoder",
//	    Binary: "/usr/local/bin/dlms-decode",
//	    Args:   []string{"--port", "/dev/ttyUSB0", "--json"},
//	})
//
//	if err := mgr.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	defer mgr.Stop()
//
//	src, err := source.NewStreamSource(mgr.Stdout(), source.FormatJSON)
package process
