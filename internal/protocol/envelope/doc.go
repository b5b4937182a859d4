// Package envelope defines the forward secrecy wire messages and their
// protobuf encoding.
//
// Every envelope names a session and carries exactly one of Init, Accept,
// Reject, DataMessage or Terminate:
//
//	message Envelope {
//	  bytes session_id = 1;
//	  oneof content {
//	    Init init = 2;
//	    Accept accept = 3;
//	    Reject reject = 4;
//	    Encapsulated encapsulated = 5;
//	    Terminate terminate = 6;
//	  }
//	}
//
// The codec is written against protowire directly; field numbers are listed
// next to each type. Fixed-length fields (session id, ephemeral keys, rejected
// message id) are checked on decode.
package envelope
