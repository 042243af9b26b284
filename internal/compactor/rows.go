// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package compactor turns a day's worth of archived protobuf snapshots for
// one feed into a single columnar Parquet file, per §4.6. It never imports
// internal/scheduler; the only contract between the two sides is the blob
// store's directory layout.
package compactor

// VehiclePositionRow is one flattened GTFS-Realtime vehicle position
// entity. Field order and names are stable — breaking changes require
// coordination with downstream readers.
type VehiclePositionRow struct {
	SourceFile string `parquet:"name=source_file, type=BYTE_ARRAY, convertedtype=UTF8"`
	FeedURL    string `parquet:"name=feed_url, type=BYTE_ARRAY, convertedtype=UTF8"`

	FeedTimestamp *uint64 `parquet:"name=feed_timestamp, type=INT64, convertedtype=UINT_64, repetitiontype=OPTIONAL"`

	EntityID              *string  `parquet:"name=entity_id, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	TripID                *string  `parquet:"name=trip_id, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	RouteID               *string  `parquet:"name=route_id, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	DirectionID           *int32   `parquet:"name=direction_id, type=INT32, repetitiontype=OPTIONAL"`
	StartTime             *string  `parquet:"name=start_time, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	StartDate             *string  `parquet:"name=start_date, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	ScheduleRelationship  *string  `parquet:"name=schedule_relationship, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	VehicleID             *string  `parquet:"name=vehicle_id, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	VehicleLabel          *string  `parquet:"name=vehicle_label, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	LicensePlate          *string  `parquet:"name=license_plate, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Latitude              *float32 `parquet:"name=latitude, type=FLOAT, repetitiontype=OPTIONAL"`
	Longitude             *float32 `parquet:"name=longitude, type=FLOAT, repetitiontype=OPTIONAL"`
	Bearing               *float32 `parquet:"name=bearing, type=FLOAT, repetitiontype=OPTIONAL"`
	Odometer              *float64 `parquet:"name=odometer, type=DOUBLE, repetitiontype=OPTIONAL"`
	Speed                 *float32 `parquet:"name=speed, type=FLOAT, repetitiontype=OPTIONAL"`
	CurrentStopSequence   *int32   `parquet:"name=current_stop_sequence, type=INT32, repetitiontype=OPTIONAL"`
	StopID                *string  `parquet:"name=stop_id, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	CurrentStatus         *string  `parquet:"name=current_status, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Timestamp             *uint64  `parquet:"name=timestamp, type=INT64, convertedtype=UINT_64, repetitiontype=OPTIONAL"`
	CongestionLevel       *string  `parquet:"name=congestion_level, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	OccupancyStatus       *string  `parquet:"name=occupancy_status, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	OccupancyPercentage   *int32   `parquet:"name=occupancy_percentage, type=INT32, repetitiontype=OPTIONAL"`
}

// TripUpdateRow is one flattened stop-time update from a GTFS-Realtime trip
// update entity. A trip update with no stop_time_update children still
// yields one row, with the stop-time columns left null.
type TripUpdateRow struct {
	SourceFile string `parquet:"name=source_file, type=BYTE_ARRAY, convertedtype=UTF8"`
	FeedURL    string `parquet:"name=feed_url, type=BYTE_ARRAY, convertedtype=UTF8"`

	FeedTimestamp *uint64 `parquet:"name=feed_timestamp, type=INT64, convertedtype=UINT_64, repetitiontype=OPTIONAL"`

	TripID               *string `parquet:"name=trip_id, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	RouteID              *string `parquet:"name=route_id, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	DirectionID          *int32  `parquet:"name=direction_id, type=INT32, repetitiontype=OPTIONAL"`
	StartTime            *string `parquet:"name=start_time, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	StartDate            *string `parquet:"name=start_date, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	ScheduleRelationship *string `parquet:"name=schedule_relationship, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	VehicleID            *string `parquet:"name=vehicle_id, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	VehicleLabel         *string `parquet:"name=vehicle_label, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	LicensePlate         *string `parquet:"name=license_plate, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	TripTimestamp        *uint64 `parquet:"name=trip_timestamp, type=INT64, convertedtype=UINT_64, repetitiontype=OPTIONAL"`
	TripDelay            *int32  `parquet:"name=trip_delay, type=INT32, repetitiontype=OPTIONAL"`

	StopSequence             *int32  `parquet:"name=stop_sequence, type=INT32, repetitiontype=OPTIONAL"`
	StopID                   *string `parquet:"name=stop_id, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	ArrivalDelay             *int32  `parquet:"name=arrival_delay, type=INT32, repetitiontype=OPTIONAL"`
	ArrivalTime              *int64  `parquet:"name=arrival_time, type=INT64, repetitiontype=OPTIONAL"`
	ArrivalUncertainty       *int32  `parquet:"name=arrival_uncertainty, type=INT32, repetitiontype=OPTIONAL"`
	DepartureDelay           *int32  `parquet:"name=departure_delay, type=INT32, repetitiontype=OPTIONAL"`
	DepartureTime            *int64  `parquet:"name=departure_time, type=INT64, repetitiontype=OPTIONAL"`
	DepartureUncertainty     *int32  `parquet:"name=departure_uncertainty, type=INT32, repetitiontype=OPTIONAL"`
	StopScheduleRelationship *string `parquet:"name=stop_schedule_relationship, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
}

// ServiceAlertRow is one flattened informed-entity row from a GTFS-Realtime
// service alert. An alert with no informed_entity children still yields
// one row, with the entity columns left null.
type ServiceAlertRow struct {
	SourceFile string `parquet:"name=source_file, type=BYTE_ARRAY, convertedtype=UTF8"`
	FeedURL    string `parquet:"name=feed_url, type=BYTE_ARRAY, convertedtype=UTF8"`

	FeedTimestamp *uint64 `parquet:"name=feed_timestamp, type=INT64, convertedtype=UINT_64, repetitiontype=OPTIONAL"`

	Cause             *string `parquet:"name=cause, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Effect            *string `parquet:"name=effect, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	SeverityLevel     *string `parquet:"name=severity_level, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	ActivePeriodStart *uint64 `parquet:"name=active_period_start, type=INT64, convertedtype=UINT_64, repetitiontype=OPTIONAL"`
	ActivePeriodEnd   *uint64 `parquet:"name=active_period_end, type=INT64, convertedtype=UINT_64, repetitiontype=OPTIONAL"`
	HeaderText        *string `parquet:"name=header_text, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	DescriptionText   *string `parquet:"name=description_text, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	URL               *string `parquet:"name=url, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`

	AgencyID          *string `parquet:"name=agency_id, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	RouteID           *string `parquet:"name=route_id, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	RouteType         *int32  `parquet:"name=route_type, type=INT32, repetitiontype=OPTIONAL"`
	StopID            *string `parquet:"name=stop_id, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	TripID            *string `parquet:"name=trip_id, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	TripRouteID       *string `parquet:"name=trip_route_id, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	TripDirectionID   *int32  `parquet:"name=trip_direction_id, type=INT32, repetitiontype=OPTIONAL"`
}

// DecodedRows is the flattened output of one decoded FeedMessage, bucketed
// by row schema. A message populates at most one of the three slices in
// practice (a partition holds one feed_type), but Decode never assumes
// that — it routes purely on which oneof is populated per entity.
type DecodedRows struct {
	VehiclePositions []VehiclePositionRow
	TripUpdates      []TripUpdateRow
	ServiceAlerts    []ServiceAlertRow
}
