// Command shopper is the terminal client for the shopping assistant.
package main

func main() {
	Execute()
}
