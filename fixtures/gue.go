package fixtures

import "github.com/xlb-platform/xlbtest/tester"

// GUE is the UDP encapsulation variant of the baseline dataset: the same
// scenario sequence with GUE goldens. Counter expectations are identical
// since the input flow sequence does not change.
func GUE() (*tester.Dataset, error) {
	return tester.NewDataset("gue", forwardingFixtures(encapGUE), forwardedState())
}
