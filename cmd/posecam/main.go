// Command posecam serves the latest webcam pose landmarks over HTTP.
package main

func main() {
	Execute()
}
