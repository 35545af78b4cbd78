// Package main is the regpilot service: it runs automated government
// registration sessions behind an authenticated HTTP API.
package main

func main() {
	Execute()
}
