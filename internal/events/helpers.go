package events

import (
	"encoding/json"
	"fmt"
)

// structToMap converts a struct to map[string]interface{} using JSON marshaling.
func structToMap(data interface{}) (map[string]interface{}, error) {
	bytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var result map[string]interface{}
	if err := json.Unmarshal(bytes, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// mapToStruct converts a map[string]interface{} to a struct using JSON unmarshaling.
func mapToStruct(dataMap map[string]interface{}, target interface{}) error {
	bytes, err := json.Marshal(dataMap)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, target)
}

// SetReviewData sets the Data field with ReviewData in a type-safe way.
func (n *Notification) SetReviewData(data ReviewData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert ReviewData: %w", err)
	}
	n.Data = dataMap
	return nil
}

// GetReviewData retrieves ReviewData from the Data field.
func (n *Notification) GetReviewData() (*ReviewData, error) {
	var data ReviewData
	if err := mapToStruct(n.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse ReviewData: %w", err)
	}
	return &data, nil
}

// SetReassignData sets the Data field with ReassignData in a type-safe way.
func (n *Notification) SetReassignData(data ReassignData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert ReassignData: %w", err)
	}
	n.Data = dataMap
	return nil
}

// GetReassignData retrieves ReassignData from the Data field.
func (n *Notification) GetReassignData() (*ReassignData, error) {
	var data ReassignData
	if err := mapToStruct(n.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse ReassignData: %w", err)
	}
	return &data, nil
}
