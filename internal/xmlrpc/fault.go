package xmlrpc

import "strconv"

// Fault is an application-level error returned by the server in place of a
// return value. Message is the server's faultString, unmodified.
type Fault struct {
	Code    string
	Message string
}

func (f *Fault) Error() string {
	return "xmlrpc fault: " + f.Message
}

func (f *Fault) codeValue() Value {
	if n, err := strconv.ParseInt(f.Code, 10, 64); err == nil {
		return Int(n)
	}
	return String(f.Code)
}
